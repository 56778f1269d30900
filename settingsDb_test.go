package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_settings(t *testing.T) {
	app := initTestApp(t)

	value, err := app.getSettingValue("missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, app.saveSettingValue("test", "1"))
	value, err = app.getSettingValue("test")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	require.NoError(t, app.saveSettingValue("test", "2"))
	value, err = app.getSettingValue("test")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func Test_lastPostedPubDate(t *testing.T) {
	app := initTestApp(t)

	date, err := app.getLastPostedPubDate()
	require.NoError(t, err)
	assert.True(t, date.IsZero())

	now := time.Now()
	require.NoError(t, app.saveLastPostedPubDate(now))
	date, err = app.getLastPostedPubDate()
	require.NoError(t, err)
	assert.True(t, now.Equal(date))
}
