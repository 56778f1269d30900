package main

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cast"
)

type contentSource string

const (
	sourceJokes   contentSource = "csv_jokes"
	sourceReplies contentSource = "csv_replies"
	sourceAds     contentSource = "advertisements"
	sourceComics  contentSource = "comics"
)

type poolItem struct {
	Text     string
	Priority float64
}

type contentPool struct {
	source        contentSource
	items         []*poolItem
	recent        []string
	maxRecent     int
	lastRefreshed time.Time
}

// markRecent remembers a platform scoped hash in the ring of recently
// used items.
func (p *contentPool) markRecent(key string) {
	p.recent = append(p.recent, key)
	if len(p.recent) > p.maxRecent {
		p.recent = p.recent[len(p.recent)-p.maxRecent:]
	}
}

type rotatedContent struct {
	Text   string
	Type   contentType
	Source contentSource
}

func (a *goSocial) initContentPools() {
	a.poolsMu.Lock()
	defer a.poolsMu.Unlock()
	a.pools = map[contentSource]*contentPool{}
	pc := a.cfg.Pools
	if pc == nil {
		return
	}
	if items, err := loadCsvPool(pc.JokesCsv); err == nil {
		a.pools[sourceJokes] = &contentPool{source: sourceJokes, items: items, maxRecent: 200, lastRefreshed: time.Now()}
		a.info("Loaded jokes pool", "items", len(items))
	} else if !errors.Is(err, os.ErrNotExist) {
		a.error("Failed to load jokes pool", "err", err)
	}
	if items, err := loadCsvPool(pc.RepliesCsv); err == nil {
		a.pools[sourceReplies] = &contentPool{source: sourceReplies, items: items, maxRecent: 100, lastRefreshed: time.Now()}
		a.info("Loaded replies pool", "items", len(items))
	} else if !errors.Is(err, os.ErrNotExist) {
		a.error("Failed to load replies pool", "err", err)
	}
	if items, err := loadAdsPool(pc.AdsFile); err == nil {
		a.pools[sourceAds] = &contentPool{source: sourceAds, items: items, maxRecent: 50, lastRefreshed: time.Now()}
	} else if !errors.Is(err, os.ErrNotExist) {
		a.error("Failed to load advertisements pool", "err", err)
	}
	if items, err := loadComicsPool(pc.ComicsDir); err == nil {
		a.pools[sourceComics] = &contentPool{source: sourceComics, items: items, maxRecent: 30, lastRefreshed: time.Now()}
	} else if !errors.Is(err, os.ErrNotExist) {
		a.error("Failed to load comics pool", "err", err)
	}
}

// loadCsvPool reads a header-keyed CSV file into pool items. The text
// column is the first of content, text, joke, message or description.
func loadCsvPool(file string) ([]*poolItem, error) {
	if file == "" {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	header := records[0]
	items := []*poolItem{}
	for _, record := range records[1:] {
		row := map[string]string{}
		for i, field := range record {
			if i < len(header) {
				row[header[i]] = field
			}
		}
		text := ""
		for _, column := range []string{"content", "text", "joke", "message", "description"} {
			if v, ok := row[column]; ok && v != "" {
				text = v
				break
			}
		}
		if text == "" && len(record) > 0 {
			text = record[0]
		}
		if text == "" {
			continue
		}
		priority := cast.ToFloat64(row["priority"])
		if priority <= 0 {
			priority = 1
		}
		items = append(items, &poolItem{Text: text, Priority: priority})
	}
	return items, nil
}

type adsFile struct {
	Advertisements []struct {
		Content  string  `json:"content"`
		Priority float64 `json:"priority"`
	} `json:"advertisements"`
}

func loadAdsPool(file string) ([]*poolItem, error) {
	if file == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var ads adsFile
	if err = json.Unmarshal(data, &ads); err != nil {
		return nil, err
	}
	items := []*poolItem{}
	for _, ad := range ads.Advertisements {
		if ad.Content == "" {
			continue
		}
		priority := ad.Priority
		if priority <= 0 {
			priority = 1
		}
		items = append(items, &poolItem{Text: ad.Content, Priority: priority})
	}
	return items, nil
}

func loadComicsPool(dir string) ([]*poolItem, error) {
	if dir == "" {
		return nil, os.ErrNotExist
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if files == nil {
		return nil, os.ErrNotExist
	}
	items := []*poolItem{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var comic struct {
			Content  string  `json:"content"`
			Title    string  `json:"title"`
			Priority float64 `json:"priority"`
		}
		if err = json.Unmarshal(data, &comic); err != nil {
			continue
		}
		text := defaultIfEmpty(comic.Content, comic.Title)
		if text == "" {
			continue
		}
		priority := comic.Priority
		if priority <= 0 {
			priority = 1
		}
		items = append(items, &poolItem{Text: text, Priority: priority})
	}
	return items, nil
}

func sourceForType(ct contentType) (contentSource, bool) {
	switch ct {
	case typeJoke:
		return sourceJokes, true
	case typeAdvertisement:
		return sourceAds, true
	case typeComic:
		return sourceComics, true
	case typeInteraction:
		return sourceReplies, true
	}
	return "", false
}

func typeForSource(cs contentSource) contentType {
	switch cs {
	case sourceJokes:
		return typeJoke
	case sourceAds:
		return typeAdvertisement
	case sourceComics:
		return typeComic
	case sourceReplies:
		return typeInteraction
	}
	return typeCustom
}

// freshContent selects content for a platform that hasn't been used there
// within the platform's freshness window, preferring the platform's
// configured content types.
func (a *goSocial) freshContent(platform string, ct contentType) (*rotatedContent, error) {
	profile := a.cfg.platformProfile(platform)
	targetTypes := []contentType{}
	if ct != "" {
		targetTypes = append(targetTypes, ct)
	} else {
		for _, t := range profile.PreferredTypes {
			targetTypes = append(targetTypes, contentType(t))
		}
	}
	a.poolsMu.Lock()
	defer a.poolsMu.Unlock()
	for _, target := range targetTypes {
		source, ok := sourceForType(target)
		if !ok {
			continue
		}
		pool, ok := a.pools[source]
		if !ok {
			continue
		}
		if text, err := a.selectFromPool(pool, platform, profile); err != nil {
			return nil, err
		} else if text != "" {
			return &rotatedContent{Text: text, Type: target, Source: source}, nil
		}
	}
	// Fallback to any pool with fresh content
	for source, pool := range a.pools {
		if text, err := a.selectFromPool(pool, platform, profile); err != nil {
			return nil, err
		} else if text != "" {
			return &rotatedContent{Text: text, Type: typeForSource(source), Source: source}, nil
		}
	}
	a.warn("No fresh content available", "platform", platform)
	return nil, nil
}

type selectionCandidate struct {
	item *poolItem
	hash string
}

func (a *goSocial) selectFromPool(pool *contentPool, platform string, profile *configPlatformProfile) (string, error) {
	cutoff := time.Now().Add(-time.Duration(profile.FreshnessHours) * time.Hour)
	candidates := []*selectionCandidate{}
	for _, item := range pool.items {
		if len([]rune(item.Text)) > profile.MaxLength {
			continue
		}
		hash := contentHash(item.Text)
		if lo.Contains(pool.recent, platform+":"+hash) {
			continue
		}
		lastUsed, err := a.freshnessLastUsed(hash, platform)
		if err != nil {
			return "", err
		}
		if !lastUsed.IsZero() && lastUsed.After(cutoff) {
			continue
		}
		candidates = append(candidates, &selectionCandidate{item: item, hash: hash})
	}
	if len(candidates) == 0 {
		return "", nil
	}
	selected, err := a.weightedSelection(candidates)
	if err != nil {
		return "", err
	}
	pool.markRecent(platform + ":" + selected.hash)
	if err = a.markFreshnessUsed(selected.hash, platform); err != nil {
		return "", err
	}
	return selected.item.Text, nil
}

// weightedSelection favors high priority items, rarely used items and
// items close to the optimal post length.
func (a *goSocial) weightedSelection(candidates []*selectionCandidate) (*selectionCandidate, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	const optimalLength = 150.0
	weights := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		weight := c.item.Priority
		usage, err := a.freshnessUsageCount(c.hash)
		if err != nil {
			return nil, err
		}
		weight *= max(0.1, 1.0/float64(max(1, usage)))
		lengthFactor := 1.0 - abs(float64(len([]rune(c.item.Text)))-optimalLength)/200.0
		weight *= max(0.5, lengthFactor)
		weights[i] = weight
		total += weight
	}
	if total <= 0 {
		return candidates[rand.Intn(len(candidates))], nil
	}
	value := rand.Float64() * total
	current := 0.0
	for i, weight := range weights {
		current += weight
		if value <= current {
			return candidates[i], nil
		}
	}
	return candidates[len(candidates)-1], nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (a *goSocial) freshnessLastUsed(hash, platform string) (time.Time, error) {
	row, err := a.db.queryRow(
		"select used from content_freshness where hash = @hash and platform = @platform",
		sql.Named("hash", hash), sql.Named("platform", platform),
	)
	if err != nil {
		return time.Time{}, err
	}
	var usedString string
	if err = row.Scan(&usedString); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(dbTimeFormat, usedString)
}

func (a *goSocial) freshnessUsageCount(hash string) (int, error) {
	row, err := a.db.queryRow("select count(*) from content_freshness where hash = @hash", sql.Named("hash", hash))
	if err != nil {
		return 0, err
	}
	var count int
	err = row.Scan(&count)
	return count, err
}

func (a *goSocial) markFreshnessUsed(hash, platform string) error {
	_, err := a.db.exec(
		"insert into content_freshness (hash, platform, used) values (@hash, @platform, @used) on conflict (hash, platform) do update set used = @used2",
		sql.Named("hash", hash), sql.Named("platform", platform),
		sql.Named("used", dbTime(time.Now())), sql.Named("used2", dbTime(time.Now())),
	)
	return err
}

// resetContentFreshness forgets freshness entries older than the cutoff,
// optionally only for one platform, so old content becomes selectable again.
func (a *goSocial) resetContentFreshness(platform string, olderThan time.Duration) (int, error) {
	cutoff := dbTime(time.Now().Add(-olderThan))
	var result sql.Result
	var err error
	if platform != "" {
		result, err = a.db.exec(
			"delete from content_freshness where platform = @platform and used < @cutoff",
			sql.Named("platform", platform), sql.Named("cutoff", cutoff),
		)
	} else {
		result, err = a.db.exec("delete from content_freshness where used < @cutoff", sql.Named("cutoff", cutoff))
	}
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

// refreshContentPools reloads all pools from their source files.
func (a *goSocial) refreshContentPools() int {
	a.poolsMu.Lock()
	old := a.pools
	a.poolsMu.Unlock()
	a.initContentPools()
	refreshed := 0
	a.poolsMu.Lock()
	defer a.poolsMu.Unlock()
	for source, pool := range a.pools {
		if oldPool, ok := old[source]; ok {
			// Keep the recently used ring across refreshes
			pool.recent = oldPool.recent
			if len(pool.items) != len(oldPool.items) {
				refreshed++
			}
		} else {
			refreshed++
		}
	}
	return refreshed
}

type poolStats struct {
	Items         int       `json:"items"`
	RecentlyUsed  int       `json:"recentlyUsed"`
	LastRefreshed time.Time `json:"lastRefreshed"`
}

func (a *goSocial) rotatorStatistics() map[string]*poolStats {
	a.poolsMu.Lock()
	defer a.poolsMu.Unlock()
	stats := map[string]*poolStats{}
	for source, pool := range a.pools {
		stats[string(source)] = &poolStats{
			Items:         len(pool.items),
			RecentlyUsed:  len(pool.recent),
			LastRefreshed: pool.lastRefreshed,
		}
	}
	return stats
}

// scheduleAutomatedContent queues multiple rotator picks for one platform
// through the coordinator, spaced evenly.
func (a *goSocial) scheduleAutomatedContent(platform string, numPosts int, start time.Time, spacing time.Duration) ([]string, error) {
	if start.IsZero() {
		start = time.Now().Add(30 * time.Minute)
	}
	ids := []string{}
	for i := 0; i < numPosts; i++ {
		content, err := a.freshContent(platform, "")
		if err != nil {
			return ids, err
		}
		if content == nil {
			a.warn("No content available for scheduled post", "platform", platform, "post", i+1)
			continue
		}
		id, err := a.addContent(content.Text, content.Type, []string{platform}, map[string]time.Time{
			platform: start.Add(time.Duration(i) * spacing),
		}, 1)
		if err != nil {
			if errors.Is(err, errDuplicateContent) {
				continue
			}
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
