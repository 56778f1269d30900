package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	platformTwitter  = "twitter"
	platformMastodon = "mastodon"
	platformBluesky  = "bluesky"
)

type config struct {
	Server        *configServer                   `mapstructure:"server"`
	Db            *configDb                       `mapstructure:"database"`
	Cache         *configCache                    `mapstructure:"cache"`
	Twitter       *configTwitter                  `mapstructure:"twitter"`
	Mastodon      *configMastodon                 `mapstructure:"mastodon"`
	Bluesky       *configBluesky                  `mapstructure:"bluesky"`
	RSS           *configRSS                      `mapstructure:"rss"`
	Scheduling    *configScheduling               `mapstructure:"scheduling"`
	Pools         *configPools                    `mapstructure:"pools"`
	Profiles      map[string]*configPlatformProfile `mapstructure:"profiles"`
	Notifications *configNotifications            `mapstructure:"notifications"`
	Debug         bool                            `mapstructure:"debug"`
	initialized   bool
}

type configServer struct {
	Port          int    `mapstructure:"port"`
	PublicAddress string `mapstructure:"publicAddress"`
	Logging       bool   `mapstructure:"logging"`
}

type configDb struct {
	File     string `mapstructure:"file"`
	DumpFile string `mapstructure:"dumpFile"`
	Debug    bool   `mapstructure:"debug"`
}

type configCache struct {
	Enable     bool `mapstructure:"enable"`
	Expiration int  `mapstructure:"expiration"`
}

type configTwitter struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"apiKey"`
	APISecret    string `mapstructure:"apiSecret"`
	AccessToken  string `mapstructure:"accessToken"`
	AccessSecret string `mapstructure:"accessSecret"`
}

type configMastodon struct {
	Enabled     bool   `mapstructure:"enabled"`
	Instance    string `mapstructure:"instance"`
	AccessToken string `mapstructure:"accessToken"`
}

type configBluesky struct {
	Enabled  bool   `mapstructure:"enabled"`
	Handle   string `mapstructure:"handle"`
	Password string `mapstructure:"password"`
	Pds      string `mapstructure:"pds"`
}

type configRSS struct {
	Feeds               []string         `mapstructure:"feeds"`
	PollIntervalMinutes int              `mapstructure:"pollIntervalMinutes"`
	PostOnFirstRun      bool             `mapstructure:"postOnFirstRun"`
	Staggered           *configStaggered `mapstructure:"staggered"`
}

type configStaggered struct {
	Enabled        bool  `mapstructure:"enabled"`
	DelayMinutes   []int `mapstructure:"delayMinutes"`
	RandomizeOrder bool  `mapstructure:"randomizeOrder"`
}

type configScheduling struct {
	Timezone             string            `mapstructure:"timezone"`
	PostingFrequency     map[string]string `mapstructure:"postingFrequency"`
	MaintenanceFrequency string            `mapstructure:"maintenanceFrequency"`
	location             *time.Location
}

type configPools struct {
	JokesCsv   string `mapstructure:"jokesCsv"`
	RepliesCsv string `mapstructure:"repliesCsv"`
	AdsFile    string `mapstructure:"adsFile"`
	ComicsDir  string `mapstructure:"comicsDir"`
}

type configPlatformProfile struct {
	DailyLimit      int      `mapstructure:"dailyLimit"`
	HourlyLimit     int      `mapstructure:"hourlyLimit"`
	CooldownMinutes int      `mapstructure:"cooldownMinutes"`
	MaxLength       int      `mapstructure:"maxLength"`
	FreshnessHours  int      `mapstructure:"freshnessHours"`
	PreferredTypes  []string `mapstructure:"preferredTypes"`
}

type configNotifications struct {
	Ntfy     *configNtfy     `mapstructure:"ntfy"`
	Telegram *configTelegram `mapstructure:"telegram"`
}

type configNtfy struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
}

type configTelegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	ChatID   int64  `mapstructure:"chatId"`
	BotToken string `mapstructure:"botToken"`
}

func (tw *configTwitter) enabled() bool {
	return tw != nil && tw.Enabled && tw.APIKey != "" && tw.APISecret != "" && tw.AccessToken != "" && tw.AccessSecret != ""
}

func (m *configMastodon) enabled() bool {
	return m != nil && m.Enabled && m.Instance != "" && m.AccessToken != ""
}

func (bs *configBluesky) enabled() bool {
	return bs != nil && bs.Enabled && bs.Handle != "" && bs.Password != ""
}

func (a *goSocial) loadConfigFile(file string) error {
	// Use viper to load the config file
	v := viper.New()
	if file != "" {
		// Use config file from the flag
		v.SetConfigFile(file)
	} else {
		// Search in default locations
		v.SetConfigName("config")
		v.AddConfigPath("./config/")
		v.AddConfigPath(".")
	}
	// Read config
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	// Unmarshal config
	a.cfg = createDefaultConfig()
	return v.Unmarshal(a.cfg)
}

func (a *goSocial) initConfig() error {
	if a.cfg == nil {
		a.cfg = createDefaultConfig()
	}
	if a.cfg.initialized {
		return nil
	}
	if a.cfg.Server.PublicAddress == "" {
		return errors.New("no public address configured")
	}
	if _, err := url.Parse(a.cfg.Server.PublicAddress); err != nil {
		return errors.New("invalid public address: " + err.Error())
	}
	// Resolve scheduling timezone
	if a.cfg.Scheduling == nil {
		a.cfg.Scheduling = createDefaultConfig().Scheduling
	}
	loc, err := time.LoadLocation(defaultIfEmpty(a.cfg.Scheduling.Timezone, "UTC"))
	if err != nil {
		return errors.New("invalid timezone: " + err.Error())
	}
	a.cfg.Scheduling.location = loc
	// Check posting schedules
	for platform, schedule := range a.cfg.Scheduling.PostingFrequency {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("invalid posting schedule for %s: %w", platform, err)
		}
	}
	// Empty means no maintenance task
	if schedule := a.cfg.Scheduling.MaintenanceFrequency; schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return errors.New("invalid maintenance schedule: " + err.Error())
		}
	}
	// Mastodon instance needs a scheme
	if m := a.cfg.Mastodon; m != nil && m.Instance != "" {
		m.Instance = strings.TrimSuffix(m.Instance, "/")
		if !strings.HasPrefix(m.Instance, "https://") && !strings.HasPrefix(m.Instance, "http://") {
			m.Instance = "https://" + m.Instance
		}
	}
	// Fill missing platform profiles with defaults
	defaults := defaultPlatformProfiles()
	if a.cfg.Profiles == nil {
		a.cfg.Profiles = map[string]*configPlatformProfile{}
	}
	for platform, def := range defaults {
		profile, ok := a.cfg.Profiles[platform]
		if !ok || profile == nil {
			a.cfg.Profiles[platform] = def
			continue
		}
		if profile.DailyLimit == 0 {
			profile.DailyLimit = def.DailyLimit
		}
		if profile.HourlyLimit == 0 {
			profile.HourlyLimit = def.HourlyLimit
		}
		if profile.CooldownMinutes == 0 {
			profile.CooldownMinutes = def.CooldownMinutes
		}
		if profile.MaxLength == 0 {
			profile.MaxLength = def.MaxLength
		}
		if profile.FreshnessHours == 0 {
			profile.FreshnessHours = def.FreshnessHours
		}
		if len(profile.PreferredTypes) == 0 {
			profile.PreferredTypes = def.PreferredTypes
		}
	}
	// RSS staggering bounds
	if rss := a.cfg.RSS; rss != nil && rss.Staggered != nil {
		if len(rss.Staggered.DelayMinutes) != 2 || rss.Staggered.DelayMinutes[0] > rss.Staggered.DelayMinutes[1] {
			return errors.New("rss staggered delayMinutes must be [min, max]")
		}
	}
	a.cfg.initialized = true
	a.updateLogLevel()
	a.info("Initialized configuration")
	return nil
}

func (c *config) platformProfile(platform string) *configPlatformProfile {
	if p, ok := c.Profiles[platform]; ok && p != nil {
		return p
	}
	return &configPlatformProfile{
		DailyLimit:      100,
		HourlyLimit:     15,
		CooldownMinutes: 5,
		MaxLength:       280,
		FreshnessHours:  24,
		PreferredTypes:  []string{string(typeJoke)},
	}
}

func createDefaultConfig() *config {
	return &config{
		Server: &configServer{
			Port:          8080,
			PublicAddress: "http://localhost:8080",
		},
		Db: &configDb{
			File: "data/gosocial.db",
		},
		Cache: &configCache{
			Enable:     true,
			Expiration: 600,
		},
		Twitter: &configTwitter{
			// Off by default, limited API access
			Enabled: false,
		},
		Mastodon: &configMastodon{
			Enabled: true,
		},
		Bluesky: &configBluesky{
			Enabled: true,
			Pds:     "https://bsky.social",
		},
		RSS: &configRSS{
			PollIntervalMinutes: 20,
			PostOnFirstRun:      false,
			Staggered: &configStaggered{
				Enabled:        true,
				DelayMinutes:   []int{40, 80},
				RandomizeOrder: true,
			},
		},
		Scheduling: &configScheduling{
			Timezone:             "UTC",
			PostingFrequency:     map[string]string{},
			MaintenanceFrequency: "0 2 * * *",
		},
		Pools: &configPools{
			JokesCsv: "data/jokes.csv",
			AdsFile:  "data/advertisements.json",
		},
		Profiles: defaultPlatformProfiles(),
		Notifications: &configNotifications{
			Ntfy:     &configNtfy{},
			Telegram: &configTelegram{},
		},
	}
}

func defaultPlatformProfiles() map[string]*configPlatformProfile {
	return map[string]*configPlatformProfile{
		platformTwitter: {
			DailyLimit:      100,
			HourlyLimit:     15,
			CooldownMinutes: 5,
			MaxLength:       280,
			FreshnessHours:  24,
			PreferredTypes:  []string{string(typeJoke), string(typeAdvertisement)},
		},
		platformMastodon: {
			DailyLimit:      200,
			HourlyLimit:     25,
			CooldownMinutes: 3,
			MaxLength:       500,
			FreshnessHours:  36,
			PreferredTypes:  []string{string(typeJoke), string(typeComic)},
		},
		platformBluesky: {
			DailyLimit:      150,
			HourlyLimit:     20,
			CooldownMinutes: 4,
			MaxLength:       300,
			FreshnessHours:  30,
			PreferredTypes:  []string{string(typeJoke), string(typeCustom)},
		},
	}
}
