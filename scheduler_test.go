package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_initScheduler(t *testing.T) {
	app := initTestApp(t)
	enableTestMastodon(app)
	app.cfg.Scheduling.PostingFrequency = map[string]string{
		platformMastodon: "0 */4 * * *",
	}
	app.cfg.RSS.Feeds = []string{"https://example.com/feed.xml"}

	require.NoError(t, app.initScheduler())

	tasks := app.sched.upcomingTasks()
	ids := map[string]bool{}
	for _, task := range tasks {
		ids[task.ID] = true
		assert.True(t, task.Enabled)
		assert.False(t, task.NextRun.IsZero())
	}
	assert.True(t, ids["post-mastodon"])
	assert.True(t, ids["dispatch"])
	assert.True(t, ids["rss"])
	assert.True(t, ids["maintenance"])
}

func Test_addTaskInvalidSchedule(t *testing.T) {
	app := initTestApp(t)
	require.NoError(t, app.initScheduler())

	err := app.sched.addTask(&scheduledTask{
		ID:       "broken",
		Schedule: "not a schedule",
	})
	assert.Error(t, err)
}

func Test_taskBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Minute, taskBackoff(1))
	assert.Equal(t, 4*time.Minute, taskBackoff(2))
	assert.Equal(t, 8*time.Minute, taskBackoff(3))
	assert.Equal(t, 32*time.Minute, taskBackoff(5))
	assert.Equal(t, time.Hour, taskBackoff(6))
	assert.Equal(t, time.Hour, taskBackoff(10))
}

func Test_executeTask(t *testing.T) {
	t.Run("Success resets retries", func(t *testing.T) {
		app := initTestApp(t)
		require.NoError(t, app.initScheduler())

		task := &scheduledTask{
			ID:         "ok",
			Name:       "Succeeds",
			Schedule:   "@every 1h",
			MaxRetries: 2,
			Enabled:    true,
			run: func(context.Context) error {
				return nil
			},
		}
		require.NoError(t, app.sched.addTask(task))
		task.retryCount = 1

		app.sched.executeTask(context.Background(), task)
		assert.Equal(t, taskDone, task.status)
		assert.Equal(t, 0, task.retryCount)
		assert.True(t, task.nextRun.After(time.Now()))
	})

	t.Run("Failure backs off and disables after retries", func(t *testing.T) {
		app := initTestApp(t)
		require.NoError(t, app.initScheduler())

		task := &scheduledTask{
			ID:         "fails",
			Name:       "Fails",
			Schedule:   "@every 1h",
			MaxRetries: 2,
			Enabled:    true,
			run: func(context.Context) error {
				return errors.New("boom")
			},
		}
		require.NoError(t, app.sched.addTask(task))

		app.sched.executeTask(context.Background(), task)
		assert.Equal(t, taskFailed, task.status)
		assert.Equal(t, 1, task.retryCount)
		assert.True(t, task.Enabled)
		// Backed off two minutes, not back on the hourly schedule
		assert.True(t, task.nextRun.Before(time.Now().Add(3*time.Minute)))

		// The second failure reaches the retry limit and disables the task
		app.sched.executeTask(context.Background(), task)
		assert.Equal(t, 2, task.retryCount)
		assert.False(t, task.Enabled)
	})
}

func Test_waitForTasks(t *testing.T) {
	app := initTestApp(t)
	require.NoError(t, app.initScheduler())

	var finished atomic.Bool
	task := &scheduledTask{
		ID:       "slow",
		Name:     "Slow",
		Schedule: "@every 1h",
		Enabled:  true,
		run: func(context.Context) error {
			time.Sleep(300 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	}
	require.NoError(t, app.sched.addTask(task))
	app.sched.mu.Lock()
	task.nextRun = time.Now().Add(-time.Second)
	app.sched.mu.Unlock()

	app.sched.runDueTasks(context.Background())
	// Shutdown waits for the running task to finish
	app.sched.waitForTasks(2 * time.Second)
	assert.True(t, finished.Load())
}

func Test_forceRun(t *testing.T) {
	app := initTestApp(t)
	require.NoError(t, app.initScheduler())

	ran := false
	require.NoError(t, app.sched.addTask(&scheduledTask{
		ID:       "manual",
		Name:     "Manual",
		Schedule: "@every 24h",
		Enabled:  true,
		run: func(context.Context) error {
			ran = true
			return nil
		},
	}))

	require.NoError(t, app.sched.forceRun(context.Background(), "manual"))
	assert.True(t, ran)
	assert.Error(t, app.sched.forceRun(context.Background(), "missing"))
}

func Test_removeTask(t *testing.T) {
	app := initTestApp(t)
	require.NoError(t, app.initScheduler())

	require.NoError(t, app.sched.addTask(&scheduledTask{
		ID:       "temp",
		Name:     "Temporary",
		Schedule: "@every 1h",
		Enabled:  true,
		run:      func(context.Context) error { return nil },
	}))

	// A running task can't be removed
	app.sched.mu.Lock()
	app.sched.running["temp"] = true
	app.sched.mu.Unlock()
	assert.Error(t, app.sched.removeTask("temp"))

	app.sched.mu.Lock()
	delete(app.sched.running, "temp")
	app.sched.mu.Unlock()
	require.NoError(t, app.sched.removeTask("temp"))
	assert.Error(t, app.sched.removeTask("temp"))
}

func Test_taskStatus(t *testing.T) {
	app := initTestApp(t)
	require.NoError(t, app.initScheduler())

	info, err := app.sched.taskStatus("dispatch")
	require.NoError(t, err)
	assert.Equal(t, "dispatch", info.ID)
	assert.Equal(t, taskIdle, info.Status)

	_, err = app.sched.taskStatus("missing")
	assert.Error(t, err)
}

func Test_setTaskEnabled(t *testing.T) {
	app := initTestApp(t)
	require.NoError(t, app.initScheduler())

	require.NoError(t, app.sched.addTask(&scheduledTask{
		ID:       "toggle",
		Name:     "Toggle",
		Schedule: "@every 1h",
		Enabled:  true,
		run:      func(context.Context) error { return nil },
	}))

	require.NoError(t, app.sched.setTaskEnabled("toggle", false))
	require.NoError(t, app.sched.setTaskEnabled("toggle", true))
	assert.Error(t, app.sched.setTaskEnabled("missing", true))
}

func Test_dispatchDueContent(t *testing.T) {
	app := initTestApp(t)
	enableTestMastodon(app)

	fc := newFakeHttpClient()
	fc.setFakeResponse(http.StatusOK, `{"id":"1"}`)
	app.httpClient = fc.Client

	_, err := app.addContent("Dispatch me", typeJoke, []string{platformMastodon}, map[string]time.Time{
		platformMastodon: time.Now().Add(-time.Minute),
	}, 1)
	require.NoError(t, err)

	require.NoError(t, app.dispatchDueContent(context.Background()))

	stats, err := app.platformStatistics(platformMastodon)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)
	assert.Equal(t, 0, stats.Pending)

	// A second dispatch run has nothing to do
	require.NoError(t, app.dispatchDueContent(context.Background()))
	stats, err = app.platformStatistics(platformMastodon)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)
}

func Test_queuePlatformContent(t *testing.T) {
	app := initTestApp(t)
	enableTestMastodon(app)
	writeTestPools(t, app)

	require.NoError(t, app.queuePlatformContent(platformMastodon))

	item, err := app.nextContent(platformMastodon)
	require.NoError(t, err)
	require.NotNil(t, item)
}
