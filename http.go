package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/justinas/alice"
	"github.com/mergestat/timediff"
)

const contentTypeHeader = "Content-Type"

func (a *goSocial) startServer() error {
	// Build middleware chain
	h := alice.New(middleware.Recoverer, middleware.Heartbeat("/ping"), middleware.GetHead)
	if a.cfg.Server.Logging {
		h = h.Append(func(next http.Handler) http.Handler {
			return handlers.CombinedLoggingHandler(os.Stdout, next)
		})
	}
	a.d = h.Then(a.buildRouter())
	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.d,
		ReadHeaderTimeout: 1 * time.Minute,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
	}
	a.shutdown.Add(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			a.error("Failed to shutdown server", "err", err)
			return
		}
		a.info("Stopped server")
	})
	a.info("Starting server", "addr", s.Addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *goSocial) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", a.serveHealth)
	r.Get("/tasks", a.serveTasks)
	r.Get("/stats", a.serveStats)
	r.Get("/notifications", a.serveNotifications)
	r.Get("/tasks/{id}", a.serveTask)
	r.Delete("/tasks/{id}", a.serveRemoveTask)
	r.Post("/tasks/{id}/run", a.serveRunTask)
	return r
}

func (a *goSocial) serveJSON(w http.ResponseWriter, data any) {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.error("Failed to encode response", "err", err)
	}
}

func (a *goSocial) serveHealth(w http.ResponseWriter, _ *http.Request) {
	// The database answering is the health signal
	if _, err := a.db.exec("select 1"); err != nil {
		a.serveError(w, "database unavailable", http.StatusInternalServerError)
		return
	}
	a.serveJSON(w, map[string]any{
		"status":    "ok",
		"platforms": a.enabledPlatforms(),
	})
}

func (a *goSocial) serveTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := a.sched.upcomingTasks()
	type taskView struct {
		*taskInfo
		NextRunIn string `json:"nextRunIn"`
	}
	views := make([]*taskView, 0, len(tasks))
	now := time.Now()
	for _, task := range tasks {
		views = append(views, &taskView{
			taskInfo:  task,
			NextRunIn: timediff.TimeDiff(task.NextRun, timediff.WithStartTime(now)),
		})
	}
	a.serveJSON(w, views)
}

func (a *goSocial) serveStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{
		"pools": a.rotatorStatistics(),
	}
	platforms := map[string]*platformStats{}
	for _, platform := range a.enabledPlatforms() {
		ps, err := a.platformStatistics(platform)
		if err != nil {
			a.serveError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		platforms[platform] = ps
	}
	stats["platforms"] = platforms
	a.serveJSON(w, stats)
}

func (a *goSocial) serveNotifications(w http.ResponseWriter, _ *http.Request) {
	notifications, err := a.notifications(50)
	if err != nil {
		a.serveError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.serveJSON(w, notifications)
}

func (a *goSocial) serveTask(w http.ResponseWriter, r *http.Request) {
	info, err := a.sched.taskStatus(chi.URLParam(r, "id"))
	if err != nil {
		a.serveError(w, err.Error(), http.StatusNotFound)
		return
	}
	a.serveJSON(w, info)
}

func (a *goSocial) serveRemoveTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sched.removeTask(id); err != nil {
		a.serveError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.serveJSON(w, map[string]string{"status": "removed", "task": id})
}

func (a *goSocial) serveRunTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sched.forceRun(r.Context(), id); err != nil {
		a.serveError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.serveJSON(w, map[string]string{"status": "done", "task": id})
}

func (a *goSocial) serveError(w http.ResponseWriter, message string, status int) {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
