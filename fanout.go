package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math/rand"
	"time"

	"github.com/samber/lo"
)

const fanoutQueueName = "fanout"

type fanoutDelivery struct {
	Platform string
	Text     string
	Guid     string
	Retried  bool
}

// scheduleFanout queues one delivery per enabled platform with growing,
// randomized delays between them. Deliveries survive restarts because they
// live in the database queue.
func (a *goSocial) scheduleFanout(text, guid string) error {
	platforms := a.enabledPlatforms()
	if len(platforms) == 0 {
		a.warn("No platforms enabled for announcement", "guid", guid)
		return nil
	}
	staggered := a.cfg.RSS.Staggered
	if staggered.Enabled && staggered.RandomizeOrder {
		platforms = lo.Shuffle(platforms)
	}
	schedule := time.Now()
	for i, platform := range platforms {
		if staggered.Enabled && i > 0 {
			schedule = schedule.Add(randomBetweenMinutes(staggered.DelayMinutes[0], staggered.DelayMinutes[1]))
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&fanoutDelivery{
			Platform: platform,
			Text:     text,
			Guid:     guid,
		}); err != nil {
			return err
		}
		if err := a.enqueue(fanoutQueueName, buf.Bytes(), schedule); err != nil {
			return err
		}
		a.debug("Queued announcement delivery", "platform", platform, "guid", guid, "schedule", schedule)
	}
	return nil
}

func (a *goSocial) startFanout() {
	a.listenOnQueue(fanoutQueueName, 30*time.Second, a.fanoutQueueProcess)
}

// fanoutQueueProcess delivers one queued announcement. A failed delivery
// gets one retry, after that it is dropped with a notification.
func (a *goSocial) fanoutQueueProcess(qi *queueItem, dequeue func(), reschedule func(time.Duration)) {
	var delivery fanoutDelivery
	if err := gob.NewDecoder(bytes.NewReader(qi.content)).Decode(&delivery); err != nil {
		a.error("Failed to decode queued delivery", "err", err)
		dequeue()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := a.postToPlatform(ctx, delivery.Platform, delivery.Text)
	if err == nil {
		a.info("Announced item", "platform", delivery.Platform, "guid", delivery.Guid)
		if err := a.logPlatformPost(delivery.Platform); err != nil {
			a.error("Failed to log post", "err", err)
		}
		dequeue()
		return
	}
	if delivery.Retried {
		a.error("Delivery failed after retry, dropping", "platform", delivery.Platform, "guid", delivery.Guid, "err", err)
		a.sendNotification(fmt.Sprintf("Failed to announce %s on %s: %v", delivery.Guid, delivery.Platform, err))
		dequeue()
		return
	}
	a.warn("Delivery failed, retrying later", "platform", delivery.Platform, "guid", delivery.Guid, "err", err)
	delivery.Retried = true
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&delivery); err != nil {
		a.error("Failed to encode retry delivery", "err", err)
		dequeue()
		return
	}
	qi.content = buf.Bytes()
	reschedule(retryDelay())
}

func retryDelay() time.Duration {
	return 5*time.Minute + time.Duration(rand.Intn(120))*time.Second
}
