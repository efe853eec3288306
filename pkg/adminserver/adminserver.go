// Package adminserver serves the operational dashboard and Prometheus
// metrics for the backup subsystem.
package adminserver

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// Server represents the admin HTTP server.
type Server struct {
	httpServer *http.Server
	store      types.Store
}

// NewServer creates a new admin server instance.
func NewServer(store types.Store) *Server {
	return &Server{store: store}
}

// Start starts the admin HTTP server in a background goroutine.
func (s *Server) Start() *http.Server {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", config.CFG.Metrics.Port),
		Handler:      logRequestMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("Admin server running on port %s", config.CFG.Metrics.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	return s.httpServer
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.dashboardHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthCheckHandler)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// dashboardData holds everything the dashboard template renders.
type dashboardData struct {
	Time      string
	Stats     map[string]interface{}
	Backups   []types.Backup
	Schedules []types.Schedule
}

const recentBackupLimit = 20

// dashboardHandler renders the backup status overview page.
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	backups := s.store.GetBackups()
	if len(backups) > recentBackupLimit {
		backups = backups[:recentBackupLimit]
	}

	data := dashboardData{
		Time:      time.Now().Format("2006-01-02 15:04:05"),
		Stats:     s.store.GetStats(),
		Backups:   backups,
		Schedules: s.store.GetSchedules(),
	}

	tmpl, err := dashboardTemplate()
	if err != nil {
		log.Printf("Error building dashboard template: %v", err)
		http.Error(w, "Failed to generate template", http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		log.Printf("Error rendering dashboard: %v", err)
	}
}

func dashboardTemplate() (*template.Template, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("2006-01-02 15:04:05")
		},
		"formatBytes": func(n int64) string {
			if n <= 0 {
				return "-"
			}
			return humanize.Bytes(uint64(n))
		},
		"ago": func(t time.Time) string {
			return humanize.Time(t)
		},
		"statusClass": func(status types.BackupStatus) string {
			switch status {
			case types.StatusSuccess:
				return "success"
			case types.StatusFailed:
				return "failed"
			default:
				return "pending"
			}
		},
	}
	return template.New("dashboard").Funcs(funcs).Parse(dashboardHTML)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Backup Status</title>
    <style>
        body { font-family: sans-serif; margin: 2em; color: #222; }
        h1 { font-size: 1.4em; }
        h2 { font-size: 1.1em; margin-top: 2em; }
        table { border-collapse: collapse; width: 100%; }
        th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ddd; }
        th { background: #f5f5f5; }
        .success { color: #1a7f37; }
        .failed { color: #b42318; }
        .pending { color: #946800; }
        .muted { color: #777; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>Backup Status</h1>
    <p class="muted">Generated {{.Time}} &middot; <a href="/metrics">Metrics</a></p>

    <h2>Overview</h2>
    <table>
        <tr><th>Total backups</th><td>{{index .Stats "totalCount"}}</td></tr>
        <tr><th>Total size</th><td>{{index .Stats "totalSizeHuman"}}</td></tr>
        <tr><th>Schedules</th><td>{{index .Stats "scheduleCount"}}</td></tr>
    </table>

    <h2>Recent Backups</h2>
    <table>
        <tr><th>ID</th><th>Type</th><th>Source</th><th>Status</th><th>Size</th><th>Created</th><th>Verified</th></tr>
        {{range .Backups}}
        <tr>
            <td>{{.ID}}</td>
            <td>{{.BackupType}}</td>
            <td>{{.Source}}</td>
            <td class="{{statusClass .Status}}">{{.Status}}</td>
            <td>{{formatBytes .FileSizeBytes}}</td>
            <td title="{{.CreatedAt}}">{{ago .CreatedAt}}</td>
            <td>{{if .Verified}}yes{{else}}no{{end}}</td>
        </tr>
        {{else}}
        <tr><td colspan="7" class="muted">No backups recorded yet.</td></tr>
        {{end}}
    </table>

    <h2>Schedules</h2>
    <table>
        <tr><th>ID</th><th>Type</th><th>Cadence</th><th>Time</th><th>Retention</th><th>Active</th><th>Next Run</th></tr>
        {{range .Schedules}}
        <tr>
            <td>{{.ID}}</td>
            <td>{{.BackupType}}</td>
            <td>{{.ScheduleType}}</td>
            <td>{{.ScheduleTime}}</td>
            <td>{{.RetentionDays}} days</td>
            <td>{{if .IsActive}}yes{{else}}paused{{end}}</td>
            <td>{{formatTime .NextRunTime}}</td>
        </tr>
        {{else}}
        <tr><td colspan="7" class="muted">No schedules configured.</td></tr>
        {{end}}
    </table>
</body>
</html>`

// logRequestMiddleware logs each request with its duration.
func logRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
