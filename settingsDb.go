package main

import (
	"database/sql"
	"errors"
	"time"
)

const (
	lastPostedPubDateSetting = "rsslastpubdate"
)

func (a *goSocial) getSettingValue(name string) (string, error) {
	row, err := a.db.queryRow("select value from settings where name = @name", sql.Named("name", name))
	if err != nil {
		return "", err
	}
	var value string
	err = row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return value, nil
}

func (a *goSocial) saveSettingValue(name, value string) error {
	_, err := a.db.exec(
		"insert into settings (name, value) values (@name, @value) on conflict (name) do update set value = @value2",
		sql.Named("name", name),
		sql.Named("value", value),
		sql.Named("value2", value),
	)
	return err
}

// Last pubDate that was fanned out, the RSS posting threshold.
func (a *goSocial) getLastPostedPubDate() (time.Time, error) {
	value, err := a.getSettingValue(lastPostedPubDateSetting)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, value)
}

func (a *goSocial) saveLastPostedPubDate(t time.Time) error {
	return a.saveSettingValue(lastPostedPubDateSetting, t.UTC().Format(time.RFC3339Nano))
}
