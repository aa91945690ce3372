package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"musicman/internal/config"
	"musicman/internal/download"
	"musicman/internal/library"
	"musicman/internal/logger"
	"musicman/internal/store"
	"musicman/internal/web"
)

func main() {
	var (
		addr       string
		configPath string
	)

	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.Parse()

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger with file logging
	l := logger.New(cfg.Verbose)
	logDir := config.GetDefaultLogPath()
	if err := os.MkdirAll(logDir, 0755); err == nil {
		logPath := filepath.Join(logDir, fmt.Sprintf("musicman-web-%d.log", time.Now().Unix()))
		if err := l.SetFileLog(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to setup file logging: %v\n", err)
		}
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Library scanner backed by the metadata cache
	scanner := library.NewScanner(cfg.LibraryDir, cfg.Extensions, l)
	scanner.Workers = cfg.ScanWorkers
	if cache, err := store.Open(cfg.CachePath); err != nil {
		l.Warn("Metadata cache unavailable: %v", err)
	} else {
		scanner.Cache = cache
		defer cache.Close()
	}

	// Download queue polling in the background
	fetcher := &download.YTDLP{CookiesBrowser: cfg.CookiesBrowser}
	queue := download.NewQueue(fetcher, cfg.LibraryDir,
		cfg.ParallelDownloads, time.Duration(cfg.DownloadPollSecs)*time.Second)
	queue.SetAutoClose(cfg.AutoCloseDownloads)
	go queue.Run(ctx)

	jobMgr := web.NewJobManager()
	jobMgr.StartCleanup(ctx)

	server := web.NewServer(ctx, cfg, l, jobMgr, queue, scanner)
	server.RefreshLibrary()

	// Rescan when the library directory changes on disk (downloads
	// landing, files edited outside the app).
	watcher, err := library.WatchDir(cfg.LibraryDir, 2*time.Second, l, server.RefreshLibrary)
	if err != nil {
		l.Warn("Filesystem watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("Starting web server on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Server error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	l.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("Server shutdown error: %v", err)
	}

	l.Info("Server stopped")
}
