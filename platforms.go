package main

import (
	"context"
	"fmt"
)

func (a *goSocial) enabledPlatforms() []string {
	platforms := []string{}
	if a.cfg.Twitter.enabled() {
		platforms = append(platforms, platformTwitter)
	}
	if a.cfg.Bluesky.enabled() {
		platforms = append(platforms, platformBluesky)
	}
	if a.cfg.Mastodon.enabled() {
		platforms = append(platforms, platformMastodon)
	}
	return platforms
}

// postToPlatform publishes text on one platform, truncating it to the
// platform's length limit first.
func (a *goSocial) postToPlatform(ctx context.Context, platform, text string) error {
	text = truncateForPlatform(text, a.cfg.platformProfile(platform).MaxLength)
	switch platform {
	case platformTwitter:
		if !a.cfg.Twitter.enabled() {
			return fmt.Errorf("twitter is not configured")
		}
		return a.tweet(ctx, text)
	case platformBluesky:
		if !a.cfg.Bluesky.enabled() {
			return fmt.Errorf("bluesky is not configured")
		}
		return a.publishBluesky(ctx, text)
	case platformMastodon:
		if !a.cfg.Mastodon.enabled() {
			return fmt.Errorf("mastodon is not configured")
		}
		return a.toot(ctx, text)
	}
	return fmt.Errorf("unknown platform: %s", platform)
}
