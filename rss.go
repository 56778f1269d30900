package main

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

type feedItem struct {
	FeedUrl   string
	Guid      string
	Title     string
	Summary   string
	Link      string
	Published time.Time
}

// pollFeeds checks all configured feeds for new items and announces at most
// one item per call, the oldest unposted one. State is persisted before the
// announcement is scheduled, so a crash never posts an item twice.
func (a *goSocial) pollFeeds(ctx context.Context) error {
	if len(a.cfg.RSS.Feeds) == 0 {
		return nil
	}
	lastPubDate, err := a.getLastPostedPubDate()
	if err != nil {
		return err
	}
	newItems := []*feedItem{}
	for _, feedUrl := range a.cfg.RSS.Feeds {
		items, err := a.checkFeed(ctx, feedUrl)
		if err != nil {
			a.error("Failed to check feed", "feed", feedUrl, "err", err)
			continue
		}
		newItems = append(newItems, items...)
	}
	if len(newItems) == 0 {
		return nil
	}
	// Only items newer than the last posted publication date
	if !lastPubDate.IsZero() {
		filtered := newItems[:0]
		for _, item := range newItems {
			if item.Published.After(lastPubDate) {
				filtered = append(filtered, item)
			} else {
				a.debug("Skipping feed item with old publication date", "guid", item.Guid, "published", item.Published)
				if err := a.markItemPosted(item.Guid); err != nil {
					return err
				}
			}
		}
		newItems = filtered
	}
	if len(newItems) == 0 {
		return nil
	}
	sort.Slice(newItems, func(i, j int) bool {
		return newItems[i].Published.Before(newItems[j].Published)
	})
	item := newItems[0]
	// Persist state first, then schedule the announcement
	if err := a.markItemPosted(item.Guid); err != nil {
		return err
	}
	if err := a.saveLastPostedPubDate(item.Published); err != nil {
		return err
	}
	a.info("Announcing feed item", "guid", item.Guid, "title", item.Title)
	return a.scheduleFanout(makeTeaser(item.Title, item.Summary, item.Link), item.Guid)
}

// checkFeed fetches one feed and returns its unposted items. On the first
// check of a feed all current items are marked as seen without being
// returned; with announcing on first run enabled only the newest item is
// returned.
func (a *goSocial) checkFeed(ctx context.Context, feedUrl string) ([]*feedItem, error) {
	a.initFeedClient()
	parser := gofeed.NewParser()
	parser.Client = a.feedClient
	parser.UserAgent = appUserAgent
	feed, err := parser.ParseURLWithContext(feedUrl, ctx)
	if err != nil {
		return nil, err
	}
	if len(feed.Items) == 0 {
		return nil, nil
	}
	_, known, err := a.feedState(feedUrl)
	if err != nil {
		return nil, err
	}
	newestGuid := itemGuid(feed.Items[0])
	if !known {
		a.info("Watching new feed", "feed", feedUrl, "items", len(feed.Items))
		// On the first check, seed the posted set with the feed's history.
		// With announcing on first run enabled the newest item stays
		// unseen, so only that one gets announced.
		seed := feed.Items
		if a.cfg.RSS.PostOnFirstRun {
			seed = feed.Items[1:]
		}
		for _, item := range seed {
			if err := a.markItemPosted(itemGuid(item)); err != nil {
				return nil, err
			}
		}
		if !a.cfg.RSS.PostOnFirstRun {
			return nil, a.saveFeedState(feedUrl, newestGuid)
		}
	}
	items := []*feedItem{}
	for _, item := range feed.Items {
		guid := itemGuid(item)
		posted, err := a.isItemPosted(guid)
		if err != nil {
			return nil, err
		}
		if posted {
			continue
		}
		items = append(items, &feedItem{
			FeedUrl:   feedUrl,
			Guid:      guid,
			Title:     item.Title,
			Summary:   defaultIfEmpty(item.Description, item.Content),
			Link:      item.Link,
			Published: itemPublished(item),
		})
	}
	if err := a.saveFeedState(feedUrl, newestGuid); err != nil {
		return nil, err
	}
	return items, nil
}

func itemGuid(item *gofeed.Item) string {
	return defaultIfEmpty(item.GUID, item.Link)
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.Local()
	}
	if item.Published != "" {
		if t, err := dateparse.ParseLocal(item.Published); err == nil {
			return t
		}
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.Local()
	}
	return time.Now()
}

func (a *goSocial) feedState(feedUrl string) (lastGuid string, known bool, err error) {
	row, err := a.db.queryRow("select last_guid from rss_feeds where url = @url", sql.Named("url", feedUrl))
	if err != nil {
		return "", false, err
	}
	if err = row.Scan(&lastGuid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return lastGuid, true, nil
}

func (a *goSocial) saveFeedState(feedUrl, lastGuid string) error {
	_, err := a.db.exec(
		"insert into rss_feeds (url, last_guid, last_checked) values (@url, @guid, @checked) on conflict (url) do update set last_guid = @guid2, last_checked = @checked2",
		sql.Named("url", feedUrl), sql.Named("guid", lastGuid),
		sql.Named("checked", dbTime(time.Now())),
		sql.Named("guid2", lastGuid), sql.Named("checked2", dbTime(time.Now())),
	)
	return err
}

func (a *goSocial) isItemPosted(guid string) (bool, error) {
	row, err := a.db.queryRow("select count(*) from rss_posted where guid = @guid", sql.Named("guid", guid))
	if err != nil {
		return false, err
	}
	var count int
	if err = row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *goSocial) markItemPosted(guid string) error {
	_, err := a.db.exec(
		"insert or ignore into rss_posted (guid, posted) values (@guid, @posted)",
		sql.Named("guid", guid), sql.Named("posted", dbTime(time.Now())),
	)
	return err
}
