package main

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	shutdowner "git.jlel.se/jlelse/go-shutdowner"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type goSocial struct {
	// Config
	cfg *config
	// Database
	db *database
	// HTTP Client
	httpClient     *http.Client
	feedClient     *http.Client
	feedClientInit sync.Once
	// HTTP Router
	d http.Handler
	// Logs
	logger      *slog.Logger
	logLevel    *slog.LevelVar
	initLogOnce sync.Once
	// Scheduler
	sched *scheduler
	// Coordinator
	cooldowns   map[string]time.Time
	cooldownsMu sync.Mutex
	// Rotator
	pools   map[contentSource]*contentPool
	poolsMu sync.Mutex
	// Twitter
	twitterClient     *http.Client
	twitterClientInit sync.Once
	// Notifications
	tgBot     *tgbotapi.BotAPI
	tgBotOnce sync.Once
	// Shutdown
	shutdown shutdowner.Shutdowner
}
