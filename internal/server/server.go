// Package server exposes an index over HTTP: similarity queries, duplicate
// groups, image previews and cleaning.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"imdex/internal/fileutil"
	"imdex/internal/index"
	"imdex/internal/match"
	"imdex/internal/models"
	"imdex/internal/vptree"
)

const shutdownTimeout = 5 * time.Second

// Server answers queries against one index
type Server struct {
	ix          *index.Index
	threshold   int
	hashTimeout time.Duration
	idleTimeout time.Duration
	logger      *zap.SugaredLogger
	upgrader    websocket.Upgrader

	// guards ix; queries share it, clean takes it exclusively
	ixMu sync.RWMutex

	mu            sync.Mutex
	lastActivity  time.Time
	tabActive     bool
	activeClients int
}

// Option configures a Server
type Option func(*Server)

// WithThreshold sets the default distance for /api/groups
func WithThreshold(n int) Option {
	return func(s *Server) {
		s.threshold = n
	}
}

// WithHashTimeout bounds hashing of query images that are not indexed
func WithHashTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.hashTimeout = d
	}
}

// WithIdleTimeout stops Run after d without requests or connected clients.
// Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server for ix
func New(ix *index.Index, opts ...Option) *Server {
	s := &Server{
		ix:           ix,
		threshold:    match.DefaultThreshold,
		hashTimeout:  30 * time.Second,
		logger:       zap.NewNop().Sugar(),
		lastActivity: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/nearest", s.handleNearest)
	mux.HandleFunc("GET /api/groups", s.handleGroups)
	mux.HandleFunc("POST /api/clean", s.handleClean)
	mux.HandleFunc("GET /api/image", s.handleImage)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Run serves on addr until ctx is done or the idle timeout passes.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.Infow("server listening", "addr", ln.Addr().String())

	idle := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker(idle, stop)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Infow("shutting down server")
	case <-idle:
		s.logger.Infow("idle timeout reached, shutting down server", "timeout", s.idleTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) idleTimeoutChecker(idle, stop chan struct{}) {
	ticker := time.NewTicker(max(min(s.idleTimeout/2, 10*time.Second), time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.tabActive || s.activeClients > 0 {
				s.lastActivity = time.Now()
				s.mu.Unlock()
				continue
			}
			elapsed := time.Since(s.lastActivity)
			s.mu.Unlock()

			if elapsed >= s.idleTimeout {
				close(idle)
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) setTabActive(active bool) {
	s.mu.Lock()
	s.tabActive = active
	if active {
		s.lastActivity = time.Now()
	}
	s.mu.Unlock()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("failed to write response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

type statsResponse struct {
	Images   int            `json:"images"`
	Settings index.Settings `json:"settings"`
	Tree     vptree.Stats   `json:"tree"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	s.ixMu.RLock()
	resp := statsResponse{Images: s.ix.Len(), Settings: s.ix.Settings(), Tree: s.ix.Stats()}
	s.ixMu.RUnlock()

	s.writeJSON(w, resp)
}

// query resolves the path parameter to a point. Unindexed paths are hashed.
func (s *Server) query(r *http.Request) (models.Point, error) {
	path := r.URL.Query().Get("path")
	if path == "" {
		return models.Point{}, errors.New("path required")
	}
	return s.ix.Lookup(path, s.hashTimeout)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	maxDistance, err := intParam(r, "max_distance", 3)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	s.ixMu.RLock()
	defer s.ixMu.RUnlock()

	q, err := s.query(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	matches := s.ix.Search(q, maxDistance)
	if matches == nil {
		matches = []models.Match{}
	}
	s.writeJSON(w, matches)
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	maxResults, err := intParam(r, "max_results", 16)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	numNeighbours, err := intParam(r, "num_neighbours", 3)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	s.ixMu.RLock()
	defer s.ixMu.RUnlock()

	q, err := s.query(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	// no result list can be longer than the index
	n := s.ix.Len()
	s.writeJSON(w, s.ix.Nearest(q, min(numNeighbours, n), min(maxResults, n)))
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	threshold, err := intParam(r, "threshold", s.threshold)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	s.ixMu.RLock()
	var groups []*models.DuplicateGroup
	if r.URL.Query().Get("exact") == "true" {
		groups = s.ix.ExactGroups()
	} else {
		groups = s.ix.Groups(threshold)
	}
	s.ixMu.RUnlock()

	if groups == nil {
		groups = []*models.DuplicateGroup{}
	}
	s.writeJSON(w, groups)
}

type cleanRequest struct {
	Paths     []string `json:"paths"`
	MoveTo    string   `json:"move_to,omitempty"`
	Permanent bool     `json:"permanent,omitempty"`
}

type cleanResult struct {
	Path   string `json:"path"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	var req cleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	disposer := fileutil.Disposer{Action: fileutil.Trash}
	status := "trashed"
	switch {
	case req.MoveTo != "":
		disposer = fileutil.Disposer{Action: fileutil.Move, Dest: req.MoveTo}
		status = "moved"
	case req.Permanent:
		disposer.Action = fileutil.Delete
		status = "deleted"
	}

	s.ixMu.Lock()
	defer s.ixMu.Unlock()

	results := make([]cleanResult, 0, len(req.Paths))
	for _, path := range req.Paths {
		res := cleanResult{Path: path}
		if !s.ix.Has(path) {
			res.Error = "not indexed"
			results = append(results, res)
			continue
		}

		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			res.Status = "not_found"
		} else if err := disposer.Dispose(path); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		} else {
			res.Status = status
		}

		// disposed files are reported, and the batch saved, even if the
		// index cannot drop them
		if _, err := s.ix.Remove(path); err != nil {
			s.logger.Errorw("failed to remove from index", "path", path, "error", err)
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	if err := s.ix.Save(r.Context()); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": results})
}

// handleImage serves indexed files only
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.recordActivity()

	path := r.URL.Query().Get("path")
	if path == "" {
		s.fail(w, http.StatusBadRequest, errors.New("path required"))
		return
	}

	s.ixMu.RLock()
	indexed := s.ix.Has(path)
	s.ixMu.RUnlock()
	if !indexed {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, path)
}
