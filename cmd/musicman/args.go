package main

import (
	"fmt"
	"os"

	"musicman/internal/config"
)

// command is the parsed subcommand with its positional arguments.
type command struct {
	name string
	args []string
}

// parseArgs parses command-line arguments and loads configuration.
// Priority: CLI flags > config file > defaults
func parseArgs() (config.Config, command, string, error) {
	args := os.Args[1:]

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			printUsage()
			os.Exit(0)
		}
		if arg == "--init-config" {
			return config.Config{}, command{}, "", initConfigFile()
		}
	}

	var configPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			if i+1 >= len(args) {
				return config.Config{}, command{}, "", fmt.Errorf("--config requires a path argument")
			}
			configPath = args[i+1]
			break
		}
	}

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		return config.Config{}, command{}, "", fmt.Errorf("failed to load config: %w", err)
	}
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	var cmd command

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--verbose", "-v":
			cfg.Verbose = true

		case "--dir", "-d":
			if i+1 >= len(args) {
				return config.Config{}, command{}, "", fmt.Errorf("--dir requires a path argument")
			}
			i++
			cfg.LibraryDir = config.ExpandHome(args[i])

		case "--parallel", "-p":
			if i+1 >= len(args) {
				return config.Config{}, command{}, "", fmt.Errorf("--parallel requires a number argument")
			}
			i++
			var jobs int
			if _, err := fmt.Sscanf(args[i], "%d", &jobs); err != nil {
				return config.Config{}, command{}, "", fmt.Errorf("invalid parallel downloads value: %s", args[i])
			}
			cfg.ParallelDownloads = jobs

		case "--browser", "-b":
			if i+1 >= len(args) {
				return config.Config{}, command{}, "", fmt.Errorf("--browser requires a browser name")
			}
			i++
			cfg.CookiesBrowser = args[i]

		case "--config", "-c":
			i++

		default:
			if len(arg) > 0 && arg[0] == '-' {
				return config.Config{}, command{}, "", fmt.Errorf("unknown flag: %s", arg)
			}
			if cmd.name == "" {
				cmd.name = arg
			} else {
				cmd.args = append(cmd.args, arg)
			}
		}
	}

	if cmd.name == "" {
		return config.Config{}, command{}, "", fmt.Errorf("no command given (see --help)")
	}

	return cfg, cmd, configPath, nil
}

// initConfigFile creates a new config file with default values
func initConfigFile() error {
	path := config.GetDefaultConfigPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at: %s\n", path)
		fmt.Println("Delete it first if you want to recreate it.")
		os.Exit(0)
	}

	cfg := config.DefaultConfig()

	if err := config.SaveConfigFile(cfg, path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Printf("Created default config file at: %s\n", path)
	fmt.Println("\nYou can now edit this file to customize your settings.")
	fmt.Println("Available options:")
	fmt.Println("  library_dir: path to your music folder")
	fmt.Println("  extensions: audio extensions to manage (.mp3, .wav)")
	fmt.Println("  parallel_downloads: 1-10 (simultaneous downloads)")
	fmt.Println("  cookies_browser: brave, chrome, firefox, etc.")
	fmt.Println("  verbose: true/false (enable detailed logging)")

	os.Exit(0)
	return nil
}

// printUsage displays the help message
func printUsage() {
	fmt.Println("musicman - Manage a local music library")
	fmt.Println()
	fmt.Println("Usage: musicman [options] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list                         List songs with duration, genre and year")
	fmt.Println("  edit <file> <genre> <year> [new_name]")
	fmt.Println("                               Write genre and year tags, optionally rename")
	fmt.Println("  normalize [file...]          Loudness-normalize the library (or given files)")
	fmt.Println("  trim <file> <start> <end>    Keep only [start, end) seconds of a song")
	fmt.Println("  download <url> [url...]      Download URLs as MP3s into the library")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose              Show detailed output")
	fmt.Println("  -d, --dir <path>           Library directory (overrides config)")
	fmt.Println("  -p, --parallel <n>         Simultaneous downloads (1-10, default: 3)")
	fmt.Println("  -b, --browser <name>       Browser to extract cookies from")
	fmt.Println("  -c, --config <path>        Path to config file")
	fmt.Println("  -h, --help                 Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  --init-config              Create a default config file")
	fmt.Println()
	fmt.Println("Config file locations (checked in order):")
	fmt.Println("  ./musicman.yaml")
	fmt.Println("  ~/.config/musicman/config.yaml")
	fmt.Println("  ~/.musicman.yaml")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # List the library")
	fmt.Println("  musicman -d ~/Music list")
	fmt.Println()
	fmt.Println("  # Tag a song")
	fmt.Println("  musicman edit ~/Music/song.mp3 Rock 1999")
	fmt.Println()
	fmt.Println("  # Normalize everything that is not marked normalized yet")
	fmt.Println("  musicman normalize")
	fmt.Println()
	fmt.Println("  # Keep seconds 10 to 75 of a song")
	fmt.Println("  musicman trim ~/Music/song.mp3 10 75")
	fmt.Println()
	fmt.Println("  # Download two songs with 5 parallel slots")
	fmt.Println("  musicman -p 5 download https://youtu.be/aaa https://youtu.be/bbb")
}
