package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/se302/webtest/pkg/catalog"
	"github.com/se302/webtest/pkg/git"
	"github.com/se302/webtest/pkg/metrics"
	"github.com/se302/webtest/pkg/runner"
)

//go:embed templates static
var content embed.FS

// shutdownTimeout bounds graceful shutdown of the http server and the observer feed.
const shutdownTimeout = 5 * time.Second

// screenshotExts are the artifact extensions served by the screenshots endpoint.
var screenshotExts = []string{".png", ".jpg", ".jpeg", ".webp"}

// Runs is the run coordinator as seen by the server.
type Runs interface {
	Start(req runner.Request, emit runner.Emitter) error
	// Stop delivers EventStopped to the stopped run's emitter before it returns.
	Stop() (exited <-chan struct{}, ok bool)
	Status() runner.Status
	History() *runner.History
}

// Catalog is the suite catalog as seen by the server.
type Catalog interface {
	Suites() []catalog.TestSuite
	Refresh() []catalog.TestSuite
}

// ServerConfig holds configuration for the web server.
type ServerConfig struct {
	Port       int             // port to listen on
	ResultsDir string          // runner artifacts directory, served under /results/; empty disables it
	Observers  bool            // enable the read-only SSE feed on /events
	Version    string          // version shown in the dashboard and status
	RepoInfo   func() git.Info // git state of the project, nil for none
}

// Server provides the http api, the websocket command channel and the dashboard page.
type Server struct {
	cfg       ServerConfig
	runs      Runs
	catalog   Catalog
	hub       *Hub
	observers *Observers // nil when disabled
	upgrader  websocket.Upgrader
	srv       *http.Server

	stopMu  sync.Mutex // serializes stop:tests handling
	ownerMu sync.Mutex
	owner   chan Event // receiver of the last run-level test:stopped
}

// NewServer creates a new web server over the given coordinator and catalog.
func NewServer(cfg ServerConfig, runs Runs, cat Catalog) *Server {
	s := &Server{
		cfg:     cfg,
		runs:    runs,
		catalog: cat,
		hub:     NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if cfg.Observers {
		s.observers = NewObservers()
	}
	return s
}

// Handler returns the complete http handler with routes and CORS applied.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/tests", s.handleTests)
	mux.HandleFunc("POST /api/tests/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /api/results/{runId}", s.handleResult)
	mux.HandleFunc("GET /api/screenshots/{testId}", s.handleScreenshots)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.observers != nil {
		mux.Handle("GET /events", s.observers)
	}
	if s.cfg.ResultsDir != "" {
		mux.Handle("GET /results/", http.StripPrefix("/results/", http.FileServer(http.Dir(s.cfg.ResultsDir))))
	}

	staticFS, err := fs.Sub(content, "static")
	if err != nil {
		return nil, fmt.Errorf("static filesystem: %w", err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(mux), nil
}

// Start begins listening for HTTP requests.
// blocks until the server is stopped or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start shutdown listener
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}()

	err = s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http server: %w", err)
}

// Stop gracefully shuts down the server, disconnecting observers and websocket clients.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.observers != nil {
		if err := s.observers.Shutdown(ctx); err != nil {
			log.Printf("[DEBUG] %v", err)
		}
	}
	s.hub.Close()

	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// Hub returns the server's client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// CatalogUpdated pushes a fresh snapshot to every connected client and observer.
func (s *Server) CatalogUpdated(suites []catalog.TestSuite) {
	metrics.RecordCatalog(categoryCounts(suites))
	e := NewEvent(EventCatalogUpdated, suites)
	s.hub.Broadcast(e)
	s.publish(e)
}

// publish mirrors an event to the observer feed when enabled.
func (s *Server) publish(e Event) {
	if s.observers != nil {
		s.observers.Publish(e)
	}
}

func (s *Server) repoInfo() git.Info {
	if s.cfg.RepoInfo == nil {
		return git.Info{}
	}
	return s.cfg.RepoInfo()
}

// templateData holds data for the dashboard template.
type templateData struct {
	Version   string
	Branch    string
	Commit    string
	Observers bool
}

// handleIndex serves the main dashboard page.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := template.ParseFS(content, "templates/base.html")
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	info := s.repoInfo()
	data := templateData{Version: s.cfg.Version, Branch: info.Branch, Commit: info.Commit, Observers: s.observers != nil}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "template execution error", http.StatusInternalServerError)
		return
	}
}

// handleTests serves the current catalog snapshot.
func (s *Server) handleTests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.catalog.Suites()))
}

// handleRefresh re-discovers the catalog and pushes the result to clients.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	suites := nonNil(s.catalog.Refresh())
	s.CatalogUpdated(suites)
	writeJSON(w, http.StatusOK, suites)
}

type statusResponse struct {
	runner.Status
	Repo      git.Info `json:"repo"`
	Version   string   `json:"version,omitempty"`
	Clients   int      `json:"clients"`
	Observers bool     `json:"observers"`
}

// handleStatus serves the coordinator state with repository info.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:    s.runs.Status(),
		Repo:      s.repoInfo(),
		Version:   s.cfg.Version,
		Clients:   s.hub.ClientCount(),
		Observers: s.observers != nil,
	})
}

// handleResults serves finished runs, newest first.
func (s *Server) handleResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.History().All())
}

// handleResult serves a single finished run.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.runs.History().Get(r.PathValue("runId"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// screenshot is an image artifact left by the runner.
type screenshot struct {
	Path    string    `json:"path"` // relative to the results dir
	URL     string    `json:"url"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// handleScreenshots lists image artifacts of one case. artifacts are matched by the
// case token in their path, e.g. "TC-002" for "postlogin-navigation-TC-002".
func (s *Server) handleScreenshots(w http.ResponseWriter, r *http.Request) {
	testID := r.PathValue("testId")
	if s.cfg.ResultsDir == "" {
		writeJSON(w, http.StatusOK, []screenshot{})
		return
	}

	shots, err := findScreenshots(s.cfg.ResultsDir, screenshotToken(testID))
	if err != nil {
		log.Printf("[WARN] list screenshots for %s: %v", testID, err)
		http.Error(w, "unable to list screenshots", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, shots)
}

func screenshotToken(testID string) string {
	if tok, ok := runner.CaseToken(testID); ok {
		return "TC-" + tok
	}
	return testID
}

// findScreenshots walks dir for images whose relative path contains token.
// a missing dir gives an empty list.
func findScreenshots(dir, token string) ([]screenshot, error) {
	shots := []screenshot{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !slices.Contains(screenshotExts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil //nolint:nilerr // path outside dir, skip it
		}
		rel = filepath.ToSlash(rel)
		if !strings.Contains(rel, token) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // removed while walking
		}
		shots = append(shots, screenshot{Path: rel, URL: "/results/" + rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return shots, nil
}

func categoryCounts(suites []catalog.TestSuite) map[string]int {
	counts := make(map[string]int)
	for _, s := range suites {
		counts[string(s.Category)] += len(s.TestCases)
	}
	return counts
}

func nonNil(suites []catalog.TestSuite) []catalog.TestSuite {
	if suites == nil {
		return []catalog.TestSuite{}
	}
	return suites
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}
