package web

import (
	"context"
	"net/http"
	"sync"

	"musicman/internal/audio"
	"musicman/internal/config"
	"musicman/internal/download"
	"musicman/internal/library"
	"musicman/internal/logger"
)

// Server exposes the library, background jobs and the download queue
// over HTTP. Job progress is pushed to clients over websockets.
type Server struct {
	ctx     context.Context
	config  config.Config
	logger  *logger.Logger
	jobMgr  *JobManager
	queue   *download.Queue
	scanner *library.Scanner
	proc    *audio.Processor

	songsMu sync.RWMutex
	songs   []library.Song
}

// NewServer wires the server against its collaborators. The queue's
// polling loop is expected to be running already (started by the caller
// alongside the job manager cleanup).
func NewServer(ctx context.Context, cfg config.Config, log *logger.Logger, jobMgr *JobManager, queue *download.Queue, scanner *library.Scanner) *Server {
	return &Server{
		ctx:     ctx,
		config:  cfg,
		logger:  log,
		jobMgr:  jobMgr,
		queue:   queue,
		scanner: scanner,
		proc:    audio.New(log),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/", http.FileServer(http.Dir("web/static")))

	// API endpoints
	mux.HandleFunc("/api/library", s.handleLibrary)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/normalize", s.handleNormalize)
	mux.HandleFunc("/api/trim", s.handleTrim)
	mux.HandleFunc("/api/jobs", s.handleListJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobAction)
	mux.HandleFunc("/api/downloads", s.handleDownloads)
	mux.HandleFunc("/api/downloads/", s.handleDownloadAction)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return s.loggingMiddleware(mux)
}

// RefreshLibrary rescans the library directory and replaces the cached
// song list. Used at startup and by the filesystem watcher.
func (s *Server) RefreshLibrary() {
	songs, err := s.scanner.Scan()
	if err != nil {
		s.logger.Warn("Library refresh failed: %v", err)
		return
	}

	s.songsMu.Lock()
	s.songs = songs
	s.songsMu.Unlock()

	s.logger.Debug("Library refreshed: %d songs", len(songs))
}

func (s *Server) librarySongs() []library.Song {
	s.songsMu.RLock()
	defer s.songsMu.RUnlock()
	return s.songs
}

func (s *Server) setLibrarySongs(songs []library.Song) {
	s.songsMu.Lock()
	s.songs = songs
	s.songsMu.Unlock()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
