package main

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/araddon/dateparse"
)

type queueItem struct {
	schedule time.Time
	name     string
	content  []byte
	id       int
}

func (a *goSocial) enqueue(name string, content []byte, schedule time.Time) error {
	if len(content) == 0 {
		return errors.New("empty content")
	}
	_, err := a.db.exec(
		"insert into queue (name, content, schedule) values (@name, @content, @schedule)",
		sql.Named("name", name),
		sql.Named("content", content),
		sql.Named("schedule", schedule.UTC().Format(time.RFC3339Nano)),
	)
	return err
}

func (a *goSocial) reschedule(qi *queueItem, dur time.Duration) error {
	_, err := a.db.exec(
		"update queue set schedule = @schedule, content = @content where id = @id",
		sql.Named("schedule", qi.schedule.Add(dur).UTC().Format(time.RFC3339Nano)),
		sql.Named("content", qi.content),
		sql.Named("id", qi.id),
	)
	return err
}

func (a *goSocial) dequeue(qi *queueItem) error {
	_, err := a.db.exec("delete from queue where id = @id", sql.Named("id", qi.id))
	return err
}

func (a *goSocial) peekQueue(ctx context.Context, name string) (*queueItem, error) {
	row, err := a.db.queryRowContext(
		ctx,
		"select id, name, content, schedule from queue where schedule <= @schedule and name = @name order by schedule asc limit 1",
		sql.Named("name", name),
		sql.Named("schedule", time.Now().UTC().Format(time.RFC3339Nano)),
	)
	if err != nil {
		return nil, err
	}
	qi := &queueItem{}
	var timeString string
	if err = row.Scan(&qi.id, &qi.name, &qi.content, &timeString); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t, err := dateparse.ParseIn(timeString, time.UTC)
	if err != nil {
		return nil, err
	}
	qi.schedule = t
	return qi, nil
}

type queueProcessFunc func(qi *queueItem, dequeue func(), reschedule func(time.Duration))

func (a *goSocial) listenOnQueue(queueName string, wait time.Duration, process queueProcessFunc) {
	go func() {
		done := false
		var wg sync.WaitGroup
		wg.Add(1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		a.shutdown.Add(func() {
			done = true
			cancel()
			wg.Wait()
			a.info("Stopped queue", "name", queueName)
		})
		for !done {
			qi, err := a.peekQueue(ctx, queueName)
			if err != nil {
				a.error("Queue error", "name", queueName, "err", err)
				continue
			}
			if qi == nil {
				// No item in the queue, wait a moment
				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					continue
				}
			}
			process(
				qi,
				func() {
					if err := a.dequeue(qi); err != nil {
						a.error("Queue dequeue error", "name", queueName, "err", err)
					}
				},
				func(dur time.Duration) {
					if err := a.reschedule(qi, dur); err != nil {
						a.error("Queue reschedule error", "name", queueName, "err", err)
					}
				},
			)
		}
		wg.Done()
	}()
}
