package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_contentCoordination(t *testing.T) {
	app := initTestApp(t)

	past := time.Now().Add(-time.Minute)

	id, err := app.addContent("Why did the gopher cross the road?", typeJoke, []string{platformMastodon}, map[string]time.Time{
		platformMastodon: past,
	}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Same content again is a duplicate
	_, err = app.addContent("Why did the gopher cross the road?", typeJoke, []string{platformBluesky}, nil, 1)
	require.ErrorIs(t, err, errDuplicateContent)

	// Higher priority content wins
	id2, err := app.addContent("Priority announcement", typeCustom, []string{platformMastodon}, map[string]time.Time{
		platformMastodon: past,
	}, 5)
	require.NoError(t, err)

	item, err := app.nextContent(platformMastodon)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id2, item.ID)
	assert.Equal(t, typeCustom, item.Type)

	// Nothing due on other platforms
	item2, err := app.nextContent(platformBluesky)
	require.NoError(t, err)
	assert.Nil(t, item2)

	require.NoError(t, app.markContentPosted(id2, platformMastodon, true))

	// Platform is now cooling down
	assert.True(t, app.inCooldown(platformMastodon))
	item, err = app.nextContent(platformMastodon)
	require.NoError(t, err)
	assert.Nil(t, item)

	// After the cooldown the remaining item is served
	app.cooldownsMu.Lock()
	app.cooldowns[platformMastodon] = time.Now().Add(-time.Second)
	app.cooldownsMu.Unlock()
	item, err = app.nextContent(platformMastodon)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)

	require.NoError(t, app.markContentPosted(id, platformMastodon, false))

	stats, err := app.platformStatistics(platformMastodon)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Posted)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.PostsLastHour)

	// Unknown content
	assert.Error(t, app.markContentPosted("nope", platformMastodon, true))
}

func Test_platformLimits(t *testing.T) {
	app := initTestApp(t)
	app.cfg.Profiles[platformBluesky].HourlyLimit = 2

	for i := 0; i < 2; i++ {
		require.NoError(t, app.logPlatformPost(platformBluesky))
	}
	limited, err := app.platformLimitReached(platformBluesky)
	require.NoError(t, err)
	assert.True(t, limited)

	limited, err = app.platformLimitReached(platformMastodon)
	require.NoError(t, err)
	assert.False(t, limited)
}

func Test_scheduleCrossPlatform(t *testing.T) {
	app := initTestApp(t)

	start := time.Now().Add(time.Hour)
	id, err := app.scheduleCrossPlatform("Big news", typeArticle, []string{platformTwitter, platformMastodon, platformBluesky}, 15, start)
	require.NoError(t, err)

	row, err := app.db.queryRow(
		"select count(*) from content_status where id = ?", id,
	)
	require.NoError(t, err)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 3, count)

	// Nothing is due before the scheduled time
	item, err := app.nextContent(platformTwitter)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func Test_cleanupOldContent(t *testing.T) {
	app := initTestApp(t)

	id, err := app.addContent("Old news", typeArticle, []string{platformMastodon}, map[string]time.Time{
		platformMastodon: time.Now().Add(-time.Hour),
	}, 1)
	require.NoError(t, err)
	require.NoError(t, app.markContentPosted(id, platformMastodon, true))

	// Backdate the item
	_, err = app.db.exec("update content_items set created = ? where id = ?", dbTime(time.Now().Add(-48*time.Hour)), id)
	require.NoError(t, err)

	deleted, err := app.cleanupOldContent(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Pending items survive cleanup
	id2, err := app.addContent("Still pending", typeJoke, []string{platformMastodon}, nil, 1)
	require.NoError(t, err)
	_, err = app.db.exec("update content_items set created = ? where id = ?", dbTime(time.Now().Add(-48*time.Hour)), id2)
	require.NoError(t, err)
	deleted, err = app.cleanupOldContent(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
