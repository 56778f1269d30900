package main

import (
	"context"
	"net/http"
	"net/url"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
)

type mastodonStatusResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// toot publishes a status on the configured Mastodon instance. An
// idempotency key prevents duplicate statuses when a request gets retried.
func (a *goSocial) toot(ctx context.Context, text string) error {
	var resp mastodonStatusResponse
	err := requests.URL(a.cfg.Mastodon.Instance+"/api/v1/statuses").
		Method(http.MethodPost).
		Client(a.httpClient).
		Header("Authorization", "Bearer "+a.cfg.Mastodon.AccessToken).
		Header("Idempotency-Key", uuid.NewString()).
		BodyForm(url.Values{
			"status":     []string{text},
			"visibility": []string{"public"},
		}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return err
	}
	a.debug("Published Mastodon status", "id", resp.ID, "url", resp.URL)
	return nil
}
