package main

import (
	"context"
	"time"
)

// runMaintenance does the periodic housekeeping: drop handled content and
// stale freshness entries, reload the content pools, prune old
// notifications and compact the database.
func (a *goSocial) runMaintenance(_ context.Context) error {
	start := time.Now()
	deleted, err := a.cleanupOldContent(7 * 24 * time.Hour)
	if err != nil {
		return err
	}
	reset, err := a.resetContentFreshness("", 7*24*time.Hour)
	if err != nil {
		return err
	}
	refreshed := a.refreshContentPools()
	if err := a.pruneNotifications(30 * 24 * time.Hour); err != nil {
		return err
	}
	if a.cfg.Db.DumpFile != "" {
		a.db.dump(a.cfg.Db.DumpFile)
	}
	a.db.vacuum()
	a.info("Maintenance finished",
		"took", time.Since(start),
		"deletedContent", deleted,
		"resetFreshness", reset,
		"refreshedPools", refreshed,
	)
	return nil
}
