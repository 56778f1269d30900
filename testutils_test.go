package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func initTestApp(t *testing.T) *goSocial {
	app := &goSocial{
		cfg:        createDefaultTestConfig(t),
		httpClient: newHttpClient(),
	}
	require.NoError(t, app.initConfig())
	require.NoError(t, app.initDatabase())
	t.Cleanup(app.shutdown.ShutdownAndWait)
	return app
}

func enableTestMastodon(app *goSocial) {
	app.cfg.Mastodon = &configMastodon{
		Enabled:     true,
		Instance:    "https://example.social",
		AccessToken: "token",
	}
}

func enableTestBluesky(app *goSocial) {
	app.cfg.Bluesky = &configBluesky{
		Enabled:  true,
		Handle:   "test.example.com",
		Password: "secret",
	}
}
