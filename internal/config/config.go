package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains the program configuration
type Config struct {
	LibraryDir         string   `yaml:"library_dir"`
	Extensions         []string `yaml:"extensions"`
	Verbose            bool     `yaml:"verbose"`
	ParallelDownloads  int      `yaml:"parallel_downloads"`
	DownloadPollSecs   int      `yaml:"download_poll_secs"`
	AutoCloseDownloads bool     `yaml:"auto_close_downloads"`
	ScanWorkers        int      `yaml:"scan_workers"`
	CachePath          string   `yaml:"cache_path"`
	ListenAddr         string   `yaml:"listen_addr"`
	CookiesBrowser     string   `yaml:"cookies_browser"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		LibraryDir:         filepath.Join(homeDir(), "Music"),
		Extensions:         []string{".mp3", ".wav"},
		Verbose:            false,
		ParallelDownloads:  3,
		DownloadPollSecs:   1,
		AutoCloseDownloads: false,
		ScanWorkers:        4,
		CachePath:          filepath.Join(homeDir(), ".local", "share", "musicman", "library.db"),
		ListenAddr:         "127.0.0.1:8844",
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.LibraryDir = ExpandHome(cfg.LibraryDir)
	cfg.CachePath = ExpandHome(cfg.CachePath)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./musicman.yaml",
		"./musicman.yml",
		filepath.Join(home, ".config", "musicman", "config.yaml"),
		filepath.Join(home, ".config", "musicman", "config.yml"),
		filepath.Join(home, ".musicman.yaml"),
		filepath.Join(home, ".musicman.yml"),
	}

	for _, path := range locations {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "musicman", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "musicman", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.LibraryDir == "" {
		return fmt.Errorf("library_dir cannot be empty")
	}

	if len(c.Extensions) == 0 {
		return fmt.Errorf("extensions cannot be empty")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}

	if c.ParallelDownloads < 1 {
		return fmt.Errorf("parallel downloads must be at least 1, got %d", c.ParallelDownloads)
	}
	if c.ParallelDownloads > 10 {
		return fmt.Errorf("parallel downloads cannot exceed 10 (to avoid rate limiting), got %d", c.ParallelDownloads)
	}

	if c.DownloadPollSecs < 1 {
		return fmt.Errorf("download poll interval must be at least 1 second, got %d", c.DownloadPollSecs)
	}

	if c.ScanWorkers < 1 {
		return fmt.Errorf("scan workers must be at least 1, got %d", c.ScanWorkers)
	}

	if c.CachePath == "" {
		return fmt.Errorf("cache_path cannot be empty")
	}

	return nil
}
