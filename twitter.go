package main

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/dghubble/oauth1"
)

// twitterHttpClient returns an OAuth 1.0a signing client for the
// configured user context credentials.
func (a *goSocial) twitterHttpClient() *http.Client {
	a.twitterClientInit.Do(func() {
		httpClient := a.httpClient
		if httpClient == nil {
			httpClient = newHttpClient()
		}
		oauthConfig := oauth1.NewConfig(a.cfg.Twitter.APIKey, a.cfg.Twitter.APISecret)
		token := oauth1.NewToken(a.cfg.Twitter.AccessToken, a.cfg.Twitter.AccessSecret)
		a.twitterClient = oauthConfig.Client(context.WithValue(context.Background(), oauth1.HTTPClient, httpClient), token)
	})
	return a.twitterClient
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (a *goSocial) tweet(ctx context.Context, text string) error {
	var resp tweetResponse
	err := requests.URL("https://api.twitter.com/2/tweets").
		Method(http.MethodPost).
		Client(a.twitterHttpClient()).
		BodyJSON(map[string]string{"text": text}).
		ContentType(contentTypeJSON).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return err
	}
	a.debug("Published tweet", "id", resp.Data.ID)
	return nil
}
