package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type notification struct {
	ID   int
	Time int64
	Text string
}

// sendNotification saves a notification to the database and forwards it
// to all configured notification targets.
func (a *goSocial) sendNotification(text string) {
	n := &notification{
		Time: time.Now().Unix(),
		Text: text,
	}
	if err := a.saveNotification(n); err != nil {
		a.error("Failed to save notification", "err", err)
	}
	if cfg := a.cfg.Notifications; cfg != nil {
		if ntfy := cfg.Ntfy; ntfy != nil && ntfy.Enabled && ntfy.Topic != "" {
			if err := a.sendNtfy(ntfy.Topic, text); err != nil {
				a.error("Failed to send ntfy notification", "err", err)
			}
		}
		if tg := cfg.Telegram; tg != nil && tg.Enabled && tg.BotToken != "" && tg.ChatID != 0 {
			if err := a.sendTelegram(tg.ChatID, text); err != nil {
				a.error("Failed to send Telegram notification", "err", err)
			}
		}
	}
}

func (a *goSocial) saveNotification(n *notification) error {
	_, err := a.db.exec(
		"insert into notifications (time, text) values (@time, @text)",
		sql.Named("time", n.Time), sql.Named("text", n.Text),
	)
	return err
}

func (a *goSocial) notifications(limit int) ([]*notification, error) {
	rows, err := a.db.query(
		"select id, time, text from notifications order by id desc limit @limit",
		sql.Named("limit", limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notifications := []*notification{}
	for rows.Next() {
		n := &notification{}
		if err = rows.Scan(&n.ID, &n.Time, &n.Text); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (a *goSocial) pruneNotifications(olderThan time.Duration) error {
	_, err := a.db.exec(
		"delete from notifications where time < @cutoff",
		sql.Named("cutoff", time.Now().Add(-olderThan).Unix()),
	)
	return err
}

func (a *goSocial) sendNtfy(topic, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return requests.URL("https://ntfy.sh/"+topic).
		Method(http.MethodPost).
		Client(a.httpClient).
		BodyBytes([]byte(text)).
		Fetch(ctx)
}

func (a *goSocial) sendTelegram(chatID int64, text string) error {
	bot, err := a.telegramBot()
	if err != nil {
		return err
	}
	_, err = bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (a *goSocial) telegramBot() (*tgbotapi.BotAPI, error) {
	var initErr error
	a.tgBotOnce.Do(func() {
		a.tgBot, initErr = tgbotapi.NewBotAPIWithClient(a.cfg.Notifications.Telegram.BotToken, tgbotapi.APIEndpoint, a.httpClient)
	})
	if initErr != nil {
		return nil, initErr
	}
	if a.tgBot == nil {
		return nil, errTelegramNotInitialized
	}
	return a.tgBot, nil
}

var errTelegramNotInitialized = errors.New("telegram bot not initialized")
