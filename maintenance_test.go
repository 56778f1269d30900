package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_runMaintenance(t *testing.T) {
	app := initTestApp(t)
	writeTestPools(t, app)

	// Seed some old data
	id, err := app.addContent("Old content", typeJoke, []string{platformMastodon}, map[string]time.Time{
		platformMastodon: time.Now().Add(-10 * 24 * time.Hour),
	}, 1)
	require.NoError(t, err)
	require.NoError(t, app.markContentPosted(id, platformMastodon, true))
	_, err = app.db.exec("update content_items set created = ?", dbTime(time.Now().Add(-10*24*time.Hour)))
	require.NoError(t, err)
	require.NoError(t, app.saveNotification(&notification{
		Time: time.Now().Add(-60 * 24 * time.Hour).Unix(),
		Text: "Ancient",
	}))

	require.NoError(t, app.runMaintenance(context.Background()))

	// Old content and notifications are gone
	row, err := app.db.queryRow("select count(*) from content_items")
	require.NoError(t, err)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)
	notifications, err := app.notifications(10)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func Test_maintenanceDumpsDatabase(t *testing.T) {
	app := initTestApp(t)
	app.cfg.Db.DumpFile = app.cfg.Db.File + ".dump"
	app.db.dumpFile = app.cfg.Db.DumpFile

	require.NoError(t, app.runMaintenance(context.Background()))

	_, err := os.Stat(app.cfg.Db.DumpFile)
	assert.NoError(t, err)
}
