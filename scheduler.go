package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type taskStatus string

const (
	taskIdle    taskStatus = "idle"
	taskRunning taskStatus = "running"
	taskFailed  taskStatus = "failed"
	taskDone    taskStatus = "done"
)

type scheduledTask struct {
	ID         string
	Name       string
	Platform   string
	Schedule   string
	Priority   int
	MaxRetries int
	Enabled    bool

	retryCount int
	nextRun    time.Time
	lastRun    time.Time
	status     taskStatus
	cronSched  cron.Schedule
	run        func(ctx context.Context) error
}

type scheduler struct {
	a       *goSocial
	loc     *time.Location
	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	running map[string]bool
	taskWg  sync.WaitGroup
}

func (a *goSocial) initScheduler() error {
	a.sched = &scheduler{
		a:       a,
		loc:     a.cfg.Scheduling.location,
		tasks:   map[string]*scheduledTask{},
		running: map[string]bool{},
	}
	return a.sched.addDefaultTasks()
}

func (s *scheduler) addTask(task *scheduledTask) error {
	sched, err := cron.ParseStandard(task.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule for task %s: %w", task.ID, err)
	}
	task.cronSched = sched
	task.nextRun = sched.Next(time.Now().In(s.loc))
	task.status = taskIdle
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *scheduler) addDefaultTasks() error {
	a := s.a
	for _, platform := range a.enabledPlatforms() {
		schedule, ok := a.cfg.Scheduling.PostingFrequency[platform]
		if !ok {
			continue
		}
		platform := platform
		if err := s.addTask(&scheduledTask{
			ID:         "post-" + platform,
			Name:       "Queue content for " + platform,
			Platform:   platform,
			Schedule:   schedule,
			Priority:   5,
			MaxRetries: 3,
			Enabled:    true,
			run: func(ctx context.Context) error {
				return a.queuePlatformContent(platform)
			},
		}); err != nil {
			return err
		}
	}
	if err := s.addTask(&scheduledTask{
		ID:         "dispatch",
		Name:       "Dispatch due content",
		Schedule:   "@every 1m",
		Priority:   8,
		MaxRetries: 5,
		Enabled:    true,
		run:        a.dispatchDueContent,
	}); err != nil {
		return err
	}
	if len(a.cfg.RSS.Feeds) > 0 {
		if err := s.addTask(&scheduledTask{
			ID:         "rss",
			Name:       "Poll feeds",
			Schedule:   fmt.Sprintf("@every %dm", a.cfg.RSS.PollIntervalMinutes),
			Priority:   7,
			MaxRetries: 5,
			Enabled:    true,
			run:        a.pollFeeds,
		}); err != nil {
			return err
		}
	}
	if schedule := a.cfg.Scheduling.MaintenanceFrequency; schedule != "" {
		if err := s.addTask(&scheduledTask{
			ID:         "maintenance",
			Name:       "Maintenance",
			Schedule:   schedule,
			Priority:   1,
			MaxRetries: 1,
			Enabled:    true,
			run:        a.runMaintenance,
		}); err != nil {
			return err
		}
	}
	return nil
}

// start runs the scheduler loop until shutdown. Due tasks run in their own
// goroutines, higher priority first.
func (s *scheduler) start() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	s.a.shutdown.Add(func() {
		cancel()
		wg.Wait()
		s.waitForTasks(time.Minute)
		s.a.info("Stopped scheduler")
	})
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDueTasks(ctx)
			}
		}
	}()
	s.a.info("Started scheduler", "tasks", len(s.tasks))
}

func (s *scheduler) runDueTasks(ctx context.Context) {
	now := time.Now().In(s.loc)
	s.mu.Lock()
	due := []*scheduledTask{}
	for _, task := range s.tasks {
		if task.Enabled && !s.running[task.ID] && !task.nextRun.After(now) {
			due = append(due, task)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Priority > due[j].Priority
	})
	for _, task := range due {
		s.running[task.ID] = true
		s.taskWg.Add(1)
	}
	s.mu.Unlock()
	for _, task := range due {
		task := task
		go func() {
			defer s.taskWg.Done()
			s.executeTask(ctx, task)
			s.mu.Lock()
			delete(s.running, task.ID)
			s.mu.Unlock()
		}()
	}
}

// waitForTasks blocks until all running tasks finish, at most for the
// given timeout.
func (s *scheduler) waitForTasks(timeout time.Duration) {
	finished := make(chan struct{})
	go func() {
		s.taskWg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(timeout):
		s.a.warn("Gave up waiting for running tasks", "timeout", timeout)
	}
}

func (s *scheduler) executeTask(ctx context.Context, task *scheduledTask) {
	s.mu.Lock()
	task.status = taskRunning
	task.lastRun = time.Now().In(s.loc)
	s.mu.Unlock()
	s.a.debug("Running task", "task", task.ID)
	err := task.run(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		task.status = taskDone
		task.retryCount = 0
		task.nextRun = task.cronSched.Next(time.Now().In(s.loc))
		return
	}
	task.status = taskFailed
	task.retryCount++
	s.a.error("Task failed", "task", task.ID, "attempt", task.retryCount, "err", err)
	if task.retryCount >= task.MaxRetries {
		task.Enabled = false
		s.a.warn("Disabling task after repeated failures", "task", task.ID)
		go s.a.sendNotification(fmt.Sprintf("Task %s disabled after %d failed attempts: %v", task.Name, task.retryCount, err))
		return
	}
	task.nextRun = time.Now().In(s.loc).Add(taskBackoff(task.retryCount))
}

// taskBackoff is 60s doubled per retry already taken, capped at one hour.
func taskBackoff(retry int) time.Duration {
	if retry >= 6 {
		return time.Hour
	}
	return time.Minute << retry
}

// forceRun runs a task immediately, regardless of its schedule.
func (s *scheduler) forceRun(ctx context.Context, id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown task: %s", id)
	}
	if s.running[id] {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", id)
	}
	s.running[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()
	s.executeTask(ctx, task)
	return nil
}

// removeTask drops a task from the scheduler. Running tasks can't be
// removed.
func (s *scheduler) removeTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("unknown task: %s", id)
	}
	if s.running[id] {
		return fmt.Errorf("task is running: %s", id)
	}
	delete(s.tasks, id)
	return nil
}

func (s *scheduler) taskStatus(id string) (*taskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("unknown task: %s", id)
	}
	return &taskInfo{
		ID:       task.ID,
		Name:     task.Name,
		Platform: task.Platform,
		Schedule: task.Schedule,
		Priority: task.Priority,
		Enabled:  task.Enabled,
		Status:   task.status,
		NextRun:  task.nextRun,
		LastRun:  task.lastRun,
		Retries:  task.retryCount,
	}, nil
}

func (s *scheduler) setTaskEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task: %s", id)
	}
	task.Enabled = enabled
	if enabled {
		task.retryCount = 0
		task.nextRun = task.cronSched.Next(time.Now().In(s.loc))
	}
	return nil
}

type taskInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Platform string     `json:"platform,omitempty"`
	Schedule string     `json:"schedule"`
	Priority int        `json:"priority"`
	Enabled  bool       `json:"enabled"`
	Status   taskStatus `json:"status"`
	NextRun  time.Time  `json:"nextRun"`
	LastRun  time.Time  `json:"lastRun,omitempty"`
	Retries  int        `json:"retries,omitempty"`
}

// upcomingTasks lists all tasks sorted by next run, then priority.
func (s *scheduler) upcomingTasks() []*taskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := []*taskInfo{}
	for _, task := range s.tasks {
		infos = append(infos, &taskInfo{
			ID:       task.ID,
			Name:     task.Name,
			Platform: task.Platform,
			Schedule: task.Schedule,
			Priority: task.Priority,
			Enabled:  task.Enabled,
			Status:   task.status,
			NextRun:  task.nextRun,
			LastRun:  task.lastRun,
			Retries:  task.retryCount,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].NextRun.Equal(infos[j].NextRun) {
			return infos[i].Priority > infos[j].Priority
		}
		return infos[i].NextRun.Before(infos[j].NextRun)
	})
	return infos
}

// queuePlatformContent picks fresh content for a platform and hands it to
// the content coordinator, scheduled for immediate dispatch.
func (a *goSocial) queuePlatformContent(platform string) error {
	content, err := a.freshContent(platform, "")
	if err != nil {
		return err
	}
	if content == nil {
		return nil
	}
	_, err = a.addContent(content.Text, content.Type, []string{platform}, map[string]time.Time{
		platform: time.Now(),
	}, 1)
	if errors.Is(err, errDuplicateContent) {
		a.debug("Skipping duplicate content", "platform", platform)
		return nil
	}
	return err
}

// dispatchDueContent posts the next due content item, if any, on every
// enabled platform. Rate limits and cooldowns are enforced by the
// coordinator.
func (a *goSocial) dispatchDueContent(ctx context.Context) error {
	for _, platform := range a.enabledPlatforms() {
		item, err := a.nextContent(platform)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}
		postErr := a.postToPlatform(ctx, platform, item.Content)
		if err := a.markContentPosted(item.ID, platform, postErr == nil); err != nil {
			return err
		}
		if postErr != nil {
			a.error("Failed to post content", "platform", platform, "id", item.ID, "err", postErr)
		} else {
			a.info("Posted content", "platform", platform, "id", item.ID, "type", item.Type)
		}
	}
	return nil
}
