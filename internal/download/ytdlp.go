package download

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// YTDLP fetches a URL as an MP3 using the yt-dlp command.
type YTDLP struct {
	// CookiesBrowser, when set, is passed as --cookies-from-browser.
	CookiesBrowser string
}

// Fetch downloads url into dir. Output lines are streamed through log;
// the returned error carries the last ERROR line from yt-dlp so the
// queue can classify the failure.
func (y *YTDLP) Fetch(ctx context.Context, url, dir string, log Logger) error {
	outputTemplate := filepath.Join(dir, "%(title)s.%(ext)s")

	args := []string{
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "5",
		"-f", "251/bestaudio/best",
		"--newline",
		"-o", outputTemplate,
	}
	if y.CookiesBrowser != "" {
		args = append(args, "--cookies-from-browser", y.CookiesBrowser)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to yt-dlp stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to yt-dlp stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var wg sync.WaitGroup
	var lastError string

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				log.Debug(line)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "ERROR") {
				lastError = line
				log.Error(line)
			} else {
				log.Warning(line)
			}
		}
	}()

	wg.Wait()
	err = cmd.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("download cancelled")
	}
	if err != nil {
		if lastError != "" {
			return fmt.Errorf("yt-dlp failed: %s", lastError)
		}
		return fmt.Errorf("yt-dlp failed: %w", err)
	}
	return nil
}
