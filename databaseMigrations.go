package main

import (
	"database/sql"

	"github.com/lopezator/migrator"
)

func migrateDb(db *sql.DB) error {
	m, err := migrator.New(
		migrator.Migrations(
			&migrator.Migration{
				Name: "00001",
				Func: func(tx *sql.Tx) error {
					_, err := tx.Exec(`
					create table queue (id integer primary key autoincrement, name text not null, content blob, schedule text not null);
					create index index_queue_name on queue (name);
					create table settings (name text not null primary key, value text);
					create table content_items (id text not null primary key, content text not null, type text not null, hash text not null, priority integer not null default 1, created text not null);
					create table content_status (id text not null, platform text not null, status text not null, scheduled text, posted text, primary key (id, platform));
					create index index_cs_platform on content_status (platform, status);
					create table content_history (hash text not null primary key, created text not null);
					create table content_freshness (hash text not null, platform text not null, used text not null, primary key (hash, platform));
					create table rss_feeds (url text not null primary key, last_guid text, last_checked text);
					create table rss_posted (guid text not null primary key, posted text not null);
					create table post_log (id integer primary key autoincrement, platform text not null, posted text not null);
					create index index_pl_platform on post_log (platform, posted);
					create table notifications (id integer primary key autoincrement, time integer not null, text text not null);
					`)
					return err
				},
			},
		),
	)
	if err != nil {
		return err
	}
	return m.Migrate(db)
}
