package main

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/carlmjohnson/requests"
)

func (bs *configBluesky) pdsURL() string {
	if bs.Pds != "" {
		return bs.Pds
	}
	return "https://bsky.social"
}

type atprotoSessionResponse struct {
	AccessToken string `json:"accessJwt"` // JWT access token.
	UserID      string `json:"did"`       // User identifier.
}

func (a *goSocial) createAtprotoSession(ctx context.Context) (*atprotoSessionResponse, error) {
	var response atprotoSessionResponse
	err := requests.URL(a.cfg.Bluesky.pdsURL() + "/xrpc/com.atproto.server.createSession").
		Method(http.MethodPost).
		Client(a.httpClient).
		BodyJSON(map[string]string{
			"identifier": a.cfg.Bluesky.Handle,
			"password":   a.cfg.Bluesky.Password,
		}).
		ContentType(contentTypeJSON).
		ToJSON(&response).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

type atprotoPost struct {
	Type      string          `json:"$type"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Facets    []*atprotoFacet `json:"facets,omitempty"`
}

type atprotoFacet struct {
	Features []atprotoFeature `json:"features"`
	Index    atprotoIndex     `json:"index"`
}

type atprotoFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
}

type atprotoIndex struct {
	ByteEnd   int `json:"byteEnd"`
	ByteStart int `json:"byteStart"`
}

type atprotoPublishResponse struct {
	URI string `json:"uri"`
}

// publishBluesky posts text as an app.bsky.feed.post record, with link
// facets for all URLs in the text.
func (a *goSocial) publishBluesky(ctx context.Context, text string) error {
	session, err := a.createAtprotoSession(ctx)
	if err != nil {
		return err
	}
	record := &atprotoPost{
		Type:      "app.bsky.feed.post",
		Text:      text,
		CreatedAt: time.Now().Format(time.RFC3339),
		Facets:    linkFacets(text),
	}
	var resp atprotoPublishResponse
	return requests.URL(a.cfg.Bluesky.pdsURL()+"/xrpc/com.atproto.repo.createRecord").
		Method(http.MethodPost).
		Client(a.httpClient).
		Header("Authorization", "Bearer "+session.AccessToken).
		BodyJSON(map[string]any{
			"repo":       session.UserID,
			"collection": "app.bsky.feed.post",
			"record":     record,
		}).
		ContentType(contentTypeJSON).
		ToJSON(&resp).
		Fetch(ctx)
}

var linkRegex = regexp.MustCompile(`https?://\S+`)

// linkFacets marks every URL in the text as a link facet, with byte
// offsets as the protocol requires.
func linkFacets(text string) []*atprotoFacet {
	matches := linkRegex.FindAllStringIndex(text, -1)
	if matches == nil {
		return nil
	}
	facets := []*atprotoFacet{}
	for _, match := range matches {
		facets = append(facets, &atprotoFacet{
			Features: []atprotoFeature{{
				Type: "app.bsky.richtext.facet#link",
				URI:  text[match[0]:match[1]],
			}},
			Index: atprotoIndex{
				ByteStart: match[0],
				ByteEnd:   match[1],
			},
		})
	}
	return facets
}
