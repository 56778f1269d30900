package main

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type contentType string

const (
	typeJoke          contentType = "joke"
	typeAdvertisement contentType = "advertisement"
	typeComic         contentType = "comic"
	typeInteraction   contentType = "interaction"
	typeArticle       contentType = "article"
	typeCustom        contentType = "custom"
)

type postStatus string

const (
	statusPending postStatus = "pending"
	statusPosted  postStatus = "posted"
	statusFailed  postStatus = "failed"
	statusSkipped postStatus = "skipped"
)

type contentItem struct {
	ID       string
	Content  string
	Type     contentType
	Hash     string
	Priority int
	Created  time.Time
}

var errDuplicateContent = errors.New("duplicate content")

const dbTimeFormat = time.RFC3339Nano

func dbTime(t time.Time) string {
	return t.UTC().Format(dbTimeFormat)
}

// addContent registers content for coordinated posting on the given
// platforms. Content whose hash is already in the history is rejected.
// Without explicit times each platform gets a slightly staggered default
// slot, half an hour out.
func (a *goSocial) addContent(content string, ct contentType, platforms []string, scheduledTimes map[string]time.Time, priority int) (string, error) {
	if content == "" || len(platforms) == 0 {
		return "", errors.New("no content or platforms")
	}
	hash := contentHash(content)
	known, err := a.isKnownContent(hash)
	if err != nil {
		return "", err
	}
	if known {
		return "", errDuplicateContent
	}
	if scheduledTimes == nil {
		scheduledTimes = map[string]time.Time{}
		base := time.Now().Add(30 * time.Minute)
		for i, platform := range platforms {
			scheduledTimes[platform] = base.Add(time.Duration(i*5) * time.Minute)
		}
	}
	id := uuid.NewString()
	now := dbTime(time.Now())
	if _, err = a.db.exec(
		"insert into content_items (id, content, type, hash, priority, created) values (@id, @content, @type, @hash, @priority, @created)",
		sql.Named("id", id), sql.Named("content", content), sql.Named("type", string(ct)),
		sql.Named("hash", hash), sql.Named("priority", priority), sql.Named("created", now),
	); err != nil {
		return "", err
	}
	for _, platform := range platforms {
		var scheduled any
		if st, ok := scheduledTimes[platform]; ok {
			scheduled = dbTime(st)
		}
		if _, err = a.db.exec(
			"insert into content_status (id, platform, status, scheduled) values (@id, @platform, @status, @scheduled)",
			sql.Named("id", id), sql.Named("platform", platform),
			sql.Named("status", string(statusPending)), sql.Named("scheduled", scheduled),
		); err != nil {
			return "", err
		}
	}
	if _, err = a.db.exec(
		"insert or ignore into content_history (hash, created) values (@hash, @created)",
		sql.Named("hash", hash), sql.Named("created", now),
	); err != nil {
		return "", err
	}
	a.debug("Added content", "id", id, "platforms", len(platforms))
	return id, nil
}

func (a *goSocial) isKnownContent(hash string) (bool, error) {
	row, err := a.db.queryRow("select count(*) from content_history where hash = @hash", sql.Named("hash", hash))
	if err != nil {
		return false, err
	}
	var count int
	if err = row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// nextContent returns the next due content item for a platform, or nil
// while the platform cools down or sits at its posting limits.
func (a *goSocial) nextContent(platform string) (*contentItem, error) {
	if a.inCooldown(platform) {
		return nil, nil
	}
	limited, err := a.platformLimitReached(platform)
	if err != nil {
		return nil, err
	}
	if limited {
		return nil, nil
	}
	row, err := a.db.queryRow(
		`select i.id, i.content, i.type, i.hash, i.priority, i.created from content_items i
		join content_status s on i.id = s.id
		where s.platform = @platform and s.status = @status and (s.scheduled is null or s.scheduled <= @now)
		order by i.priority desc, s.scheduled asc limit 1`,
		sql.Named("platform", platform),
		sql.Named("status", string(statusPending)),
		sql.Named("now", dbTime(time.Now())),
	)
	if err != nil {
		return nil, err
	}
	item := &contentItem{}
	var typeString, createdString string
	if err = row.Scan(&item.ID, &item.Content, &typeString, &item.Hash, &item.Priority, &createdString); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	item.Type = contentType(typeString)
	item.Created, _ = time.Parse(dbTimeFormat, createdString)
	return item, nil
}

// markContentPosted flips the per-platform status and, on success, logs
// the post for rate accounting and starts the platform cooldown.
func (a *goSocial) markContentPosted(id, platform string, success bool) error {
	status := statusPosted
	if !success {
		status = statusFailed
	}
	result, err := a.db.exec(
		"update content_status set status = @status, posted = @posted where id = @id and platform = @platform",
		sql.Named("status", string(status)), sql.Named("posted", dbTime(time.Now())),
		sql.Named("id", id), sql.Named("platform", platform),
	)
	if err != nil {
		return err
	}
	if changed, err := result.RowsAffected(); err == nil && changed == 0 {
		return errors.New("unknown content or platform")
	}
	if success {
		if err = a.logPlatformPost(platform); err != nil {
			return err
		}
	}
	a.startCooldown(platform)
	return nil
}

func (a *goSocial) logPlatformPost(platform string) error {
	_, err := a.db.exec(
		"insert into post_log (platform, posted) values (@platform, @posted)",
		sql.Named("platform", platform), sql.Named("posted", dbTime(time.Now())),
	)
	return err
}

func (a *goSocial) platformLimitReached(platform string) (bool, error) {
	profile := a.cfg.platformProfile(platform)
	hourly, err := a.countPlatformPosts(platform, time.Hour)
	if err != nil {
		return false, err
	}
	if hourly >= profile.HourlyLimit {
		a.warn("Hourly posting limit reached", "platform", platform, "posts", hourly)
		return true, nil
	}
	daily, err := a.countPlatformPosts(platform, 24*time.Hour)
	if err != nil {
		return false, err
	}
	if daily >= profile.DailyLimit {
		a.warn("Daily posting limit reached", "platform", platform, "posts", daily)
		return true, nil
	}
	return false, nil
}

func (a *goSocial) countPlatformPosts(platform string, window time.Duration) (int, error) {
	row, err := a.db.queryRow(
		"select count(*) from post_log where platform = @platform and posted >= @since",
		sql.Named("platform", platform), sql.Named("since", dbTime(time.Now().Add(-window))),
	)
	if err != nil {
		return 0, err
	}
	var count int
	err = row.Scan(&count)
	return count, err
}

func (a *goSocial) inCooldown(platform string) bool {
	a.cooldownsMu.Lock()
	defer a.cooldownsMu.Unlock()
	until, ok := a.cooldowns[platform]
	return ok && time.Now().Before(until)
}

func (a *goSocial) startCooldown(platform string) {
	minutes := a.cfg.platformProfile(platform).CooldownMinutes
	a.cooldownsMu.Lock()
	defer a.cooldownsMu.Unlock()
	if a.cooldowns == nil {
		a.cooldowns = map[string]time.Time{}
	}
	a.cooldowns[platform] = time.Now().Add(time.Duration(minutes) * time.Minute)
}

// scheduleCrossPlatform schedules one piece of content across multiple
// platforms with staggered minute offsets and elevated priority.
func (a *goSocial) scheduleCrossPlatform(content string, ct contentType, platforms []string, staggerMinutes int, start time.Time) (string, error) {
	if start.IsZero() {
		start = time.Now().Add(10 * time.Minute)
	}
	scheduledTimes := map[string]time.Time{}
	for i, platform := range platforms {
		scheduledTimes[platform] = start.Add(time.Duration(i*staggerMinutes) * time.Minute)
	}
	return a.addContent(content, ct, platforms, scheduledTimes, 2)
}

type platformStats struct {
	Pending       int        `json:"pending"`
	Posted        int        `json:"posted"`
	Failed        int        `json:"failed"`
	PostsLastHour int        `json:"postsLastHour"`
	PostsLastDay  int        `json:"postsLastDay"`
	NextAvailable *time.Time `json:"nextAvailable,omitempty"`
}

func (a *goSocial) platformStatistics(platform string) (*platformStats, error) {
	stats := &platformStats{}
	for status, target := range map[postStatus]*int{
		statusPending: &stats.Pending,
		statusPosted:  &stats.Posted,
		statusFailed:  &stats.Failed,
	} {
		row, err := a.db.queryRow(
			"select count(*) from content_status where platform = @platform and status = @status",
			sql.Named("platform", platform), sql.Named("status", string(status)),
		)
		if err != nil {
			return nil, err
		}
		if err = row.Scan(target); err != nil {
			return nil, err
		}
	}
	var err error
	if stats.PostsLastHour, err = a.countPlatformPosts(platform, time.Hour); err != nil {
		return nil, err
	}
	if stats.PostsLastDay, err = a.countPlatformPosts(platform, 24*time.Hour); err != nil {
		return nil, err
	}
	a.cooldownsMu.Lock()
	if until, ok := a.cooldowns[platform]; ok && time.Now().Before(until) {
		stats.NextAvailable = &until
	}
	a.cooldownsMu.Unlock()
	return stats, nil
}

// cleanupOldContent drops fully processed items older than the cutoff
// along with their status rows and trims old history and post log rows.
func (a *goSocial) cleanupOldContent(olderThan time.Duration) (int, error) {
	cutoff := dbTime(time.Now().Add(-olderThan))
	result, err := a.db.exec(
		`delete from content_items where created < @cutoff
		and not exists (select 1 from content_status where content_status.id = content_items.id and status = @pending)`,
		sql.Named("cutoff", cutoff), sql.Named("pending", string(statusPending)),
	)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	if _, err = a.db.exec(
		"delete from content_status where id not in (select id from content_items)",
	); err != nil {
		return int(deleted), err
	}
	if _, err = a.db.exec("delete from post_log where posted < @cutoff", sql.Named("cutoff", cutoff)); err != nil {
		return int(deleted), err
	}
	return int(deleted), nil
}
