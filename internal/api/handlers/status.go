package handlers

import (
	"net/http"
	"time"

	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/scan"
	"github.com/finelagusaz/ghost-launcher/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	App     *app.App
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version  string       `json:"version"`
	Identity string       `json:"identity"`
	Refresh  scan.State   `json:"refresh"`
	Schedule scheduleInfo `json:"schedule"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the refresh state and schedule as JSON. Identity is the
// active configuration, which may differ from the last refreshed one.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  h.Version,
		Identity: h.App.Target.Identity(),
		Refresh:  h.App.Orchestrator.State(),
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
