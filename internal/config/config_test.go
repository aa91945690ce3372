package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			LibraryDir:        "/tmp/music",
			Extensions:        []string{".mp3", ".wav"},
			ParallelDownloads: 3,
			DownloadPollSecs:  1,
			ScanWorkers:       4,
			CachePath:         "/tmp/library.db",
		}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "empty library dir",
			modify:  func(c *Config) { c.LibraryDir = "" },
			wantErr: true,
		},
		{
			name:    "empty extensions",
			modify:  func(c *Config) { c.Extensions = nil },
			wantErr: true,
		},
		{
			name:    "extension without dot",
			modify:  func(c *Config) { c.Extensions = []string{"mp3"} },
			wantErr: true,
		},
		{
			name:    "parallel downloads 0",
			modify:  func(c *Config) { c.ParallelDownloads = 0 },
			wantErr: true,
		},
		{
			name:    "parallel downloads 11",
			modify:  func(c *Config) { c.ParallelDownloads = 11 },
			wantErr: true,
		},
		{
			name:   "parallel downloads 10",
			modify: func(c *Config) { c.ParallelDownloads = 10 },
		},
		{
			name:    "poll interval 0",
			modify:  func(c *Config) { c.DownloadPollSecs = 0 },
			wantErr: true,
		},
		{
			name:    "scan workers 0",
			modify:  func(c *Config) { c.ScanWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "empty cache path",
			modify:  func(c *Config) { c.CachePath = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `library_dir: /tmp/test-music
parallel_downloads: 5
auto_close_downloads: true
extensions: [".mp3", ".flac"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}

	if cfg.LibraryDir != "/tmp/test-music" {
		t.Errorf("LibraryDir = %q, want %q", cfg.LibraryDir, "/tmp/test-music")
	}
	if cfg.ParallelDownloads != 5 {
		t.Errorf("ParallelDownloads = %d, want 5", cfg.ParallelDownloads)
	}
	if !cfg.AutoCloseDownloads {
		t.Error("AutoCloseDownloads = false, want true")
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[1] != ".flac" {
		t.Errorf("Extensions = %v, want [.mp3 .flac]", cfg.Extensions)
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	cfg, err := LoadConfigFile("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfigFile() should return defaults for missing file, got error: %v", err)
	}
	if cfg.ParallelDownloads != 3 {
		t.Errorf("expected default ParallelDownloads=3, got %d", cfg.ParallelDownloads)
	}
}

func TestExpandHome(t *testing.T) {
	home := homeDir()
	tests := []struct {
		input string
		want  string
	}{
		{"~/Music", filepath.Join(home, "Music")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~notslash", "~notslash"},
	}

	for _, tt := range tests {
		got := ExpandHome(tt.input)
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
