// Package ytdlp wraps the yt-dlp command line tool for metadata
// extraction and audio downloads.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
)

// Info holds the subset of yt-dlp's JSON output that we care about.
type Info struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	WebpageURL string `json:"webpage_url"`
}

// Client runs yt-dlp as a subprocess.
type Client struct {
	binPath string
}

// NewClient creates a client for the given yt-dlp binary path.
// An empty path defaults to "yt-dlp" resolved from PATH.
func NewClient(binPath string) *Client {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Client{binPath: binPath}
}

// searchTarget turns a free-text query into a yt-dlp search URL that
// resolves to the single best match.
func searchTarget(query string) string {
	return "ytsearch1:" + query
}

// ExtractInfo runs a metadata-only search for query and decodes the
// first result. No media is downloaded.
func (c *Client) ExtractInfo(ctx context.Context, query string) (*Info, error) {
	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--socket-timeout", "10",
		searchTarget(query),
	}

	cmd := exec.CommandContext(ctx, c.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("%s Extracting info: %s %v", logcolors.LogYtdlp, c.binPath, args)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp info extraction timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("yt-dlp info extraction failed: %w, stderr: %s", err, stderr.String())
	}

	var raw struct {
		Info
		Entries []Info `json:"entries"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}

	// ytsearch results arrive as a playlist with one entry; direct URLs
	// produce a flat object.
	info := raw.Info
	if len(raw.Entries) > 0 {
		info = raw.Entries[0]
	}
	if info.Title == "" {
		return nil, fmt.Errorf("yt-dlp returned no match for query %q", query)
	}

	return &info, nil
}

// DownloadOptions control the audio download.
type DownloadOptions struct {
	OutputTemplate string // yt-dlp -o value, e.g. /cache/<key>.%(ext)s
	AudioBitrate   string // e.g. "64k"
	SampleRate     int    // e.g. 22050
	Channels       int    // e.g. 1
}

// downloadArgs builds the full yt-dlp argument list for an audio
// download converted to mp3.
func downloadArgs(query string, opts DownloadOptions) []string {
	args := []string{
		"--extract-audio",
		"--audio-format", "mp3",
		"--no-playlist",
		"--no-warnings",
		"--retries", "2",
		"--socket-timeout", "10",
		"-o", opts.OutputTemplate,
	}

	var ppArgs []string
	if opts.AudioBitrate != "" {
		ppArgs = append(ppArgs, "-b:a", opts.AudioBitrate)
	}
	if opts.SampleRate > 0 {
		ppArgs = append(ppArgs, "-ar", strconv.Itoa(opts.SampleRate))
	}
	if opts.Channels > 0 {
		ppArgs = append(ppArgs, "-ac", strconv.Itoa(opts.Channels))
	}
	if len(ppArgs) > 0 {
		joined := ""
		for i, a := range ppArgs {
			if i > 0 {
				joined += " "
			}
			joined += a
		}
		args = append(args, "--postprocessor-args", "ffmpeg:"+joined)
	}

	args = append(args, searchTarget(query))
	return args
}

// Download searches for query and downloads the best match as mp3
// according to opts. The caller owns the output location and cleanup
// of any partial files yt-dlp leaves behind on failure.
func (c *Client) Download(ctx context.Context, query string, opts DownloadOptions) error {
	if opts.OutputTemplate == "" {
		return fmt.Errorf("download requires an output template")
	}

	args := downloadArgs(query, opts)
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Infof("%s Downloading: %q", logcolors.LogYtdlp, query)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("yt-dlp download timed out: %w", ctx.Err())
		}
		return fmt.Errorf("yt-dlp download failed: %w, stderr: %s", err, stderr.String())
	}

	return nil
}
