package main

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedXML(items ...string) string {
	feed := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title><link>https://example.com</link>`
	for _, item := range items {
		feed += item
	}
	return feed + "</channel></rss>"
}

func feedItemXML(guid, title string, pubDate time.Time) string {
	return fmt.Sprintf(
		`<item><guid>%s</guid><title>%s</title><link>https://example.com/%s</link><description>Description of %s</description><pubDate>%s</pubDate></item>`,
		guid, title, guid, title, pubDate.Format(time.RFC1123Z),
	)
}

func initRssTestApp(t *testing.T) (*goSocial, *fakeHttpClient) {
	app := initTestApp(t)
	enableTestMastodon(app)
	app.cfg.RSS.Feeds = []string{"https://example.com/feed.xml"}
	fc := newFakeHttpClient()
	app.feedClientInit.Do(func() {
		app.feedClient = fc.Client
	})
	return app, fc
}

func Test_pollFeeds(t *testing.T) {
	app, fc := initRssTestApp(t)

	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	item1 := feedItemXML("item-1", "First post", base)

	// First poll only remembers the current items
	fc.setFakeResponse(http.StatusOK, feedXML(item1))
	require.NoError(t, app.pollFeeds(context.Background()))
	qi, err := app.peekQueue(context.Background(), fanoutQueueName)
	require.NoError(t, err)
	assert.Nil(t, qi)
	posted, err := app.isItemPosted("item-1")
	require.NoError(t, err)
	assert.True(t, posted)

	// A new item gets announced
	item2 := feedItemXML("item-2", "Second post", base.Add(time.Hour))
	fc.setFakeResponse(http.StatusOK, feedXML(item2, item1))
	require.NoError(t, app.pollFeeds(context.Background()))

	qi, err = app.peekQueue(context.Background(), fanoutQueueName)
	require.NoError(t, err)
	require.NotNil(t, qi)

	posted, err = app.isItemPosted("item-2")
	require.NoError(t, err)
	assert.True(t, posted)

	lastPubDate, err := app.getLastPostedPubDate()
	require.NoError(t, err)
	assert.True(t, base.Add(time.Hour).Equal(lastPubDate))

	// Polling again announces nothing new
	require.NoError(t, app.dequeue(qi))
	require.NoError(t, app.pollFeeds(context.Background()))
	qi, err = app.peekQueue(context.Background(), fanoutQueueName)
	require.NoError(t, err)
	assert.Nil(t, qi)
}

func Test_pollFeedsOldestFirst(t *testing.T) {
	app, fc := initRssTestApp(t)

	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	item1 := feedItemXML("item-1", "First post", base)
	fc.setFakeResponse(http.StatusOK, feedXML(item1))
	require.NoError(t, app.pollFeeds(context.Background()))

	// Two new items at once, the older one goes first
	item2 := feedItemXML("item-2", "Second post", base.Add(time.Hour))
	item3 := feedItemXML("item-3", "Third post", base.Add(2*time.Hour))
	fc.setFakeResponse(http.StatusOK, feedXML(item3, item2, item1))
	require.NoError(t, app.pollFeeds(context.Background()))

	posted, err := app.isItemPosted("item-2")
	require.NoError(t, err)
	assert.True(t, posted)
	posted, err = app.isItemPosted("item-3")
	require.NoError(t, err)
	assert.False(t, posted)

	// The next cycle picks up the remaining item
	require.NoError(t, app.pollFeeds(context.Background()))
	posted, err = app.isItemPosted("item-3")
	require.NoError(t, err)
	assert.True(t, posted)
}

func Test_pollFeedsOldPubDateSkipped(t *testing.T) {
	app, fc := initRssTestApp(t)

	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	fc.setFakeResponse(http.StatusOK, feedXML(feedItemXML("item-1", "First post", base)))
	require.NoError(t, app.pollFeeds(context.Background()))
	require.NoError(t, app.saveLastPostedPubDate(base.Add(2*time.Hour)))

	// An item older than the last posted publication date is skipped
	fc.setFakeResponse(http.StatusOK, feedXML(
		feedItemXML("item-2", "Backdated post", base.Add(time.Hour)),
		feedItemXML("item-1", "First post", base),
	))
	require.NoError(t, app.pollFeeds(context.Background()))

	qi, err := app.peekQueue(context.Background(), fanoutQueueName)
	require.NoError(t, err)
	assert.Nil(t, qi)
	posted, err := app.isItemPosted("item-2")
	require.NoError(t, err)
	assert.True(t, posted)
}

func Test_pollFeedsPostOnFirstRun(t *testing.T) {
	app, fc := initRssTestApp(t)
	app.cfg.RSS.PostOnFirstRun = true

	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	fc.setFakeResponse(http.StatusOK, feedXML(
		feedItemXML("item-3", "Third post", base.Add(2*time.Hour)),
		feedItemXML("item-2", "Second post", base.Add(time.Hour)),
		feedItemXML("item-1", "First post", base),
	))
	require.NoError(t, app.pollFeeds(context.Background()))

	// Only the newest item gets announced, the history stays silent
	qi, err := app.peekQueue(context.Background(), fanoutQueueName)
	require.NoError(t, err)
	require.NotNil(t, qi)
	for _, guid := range []string{"item-1", "item-2", "item-3"} {
		posted, err := app.isItemPosted(guid)
		require.NoError(t, err)
		assert.True(t, posted, guid)
	}
	require.NoError(t, app.dequeue(qi))
	require.NoError(t, app.pollFeeds(context.Background()))
	qi, err = app.peekQueue(context.Background(), fanoutQueueName)
	require.NoError(t, err)
	assert.Nil(t, qi)
}
