// Package synth generates placeholder audio so a track is always
// streamable while the real download happens in the background.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
)

const (
	toneFreqHz      = 440
	toneSeconds     = 3
	sampleRate      = 22050
	audioBitrate    = "64k"
	toneTimeout     = 10 * time.Second
	silenceTimeout  = 30 * time.Second
	concatTimeout   = 60 * time.Second
)

// runner executes an external command. Tests substitute a fake.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w, stderr: %s", name, err, stderr.String())
	}
	return nil
}

// Synthesizer builds placeholder mp3 files with ffmpeg.
type Synthesizer struct {
	ffmpegPath string
	run        runner
}

// New creates a synthesizer using the given ffmpeg binary path.
// An empty path defaults to "ffmpeg" resolved from PATH.
func New(ffmpegPath string) *Synthesizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Synthesizer{ffmpegPath: ffmpegPath, run: execRunner}
}

// toneArgs produces a short beep marking the start of the placeholder.
func toneArgs(out string) []string {
	return []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=%d:duration=%d", toneFreqHz, toneSeconds),
		"-af", "volume=-5dB",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-b:a", audioBitrate,
		out,
	}
}

// silenceArgs fills the remaining track duration with silence.
func silenceArgs(seconds int, out string) []string {
	return []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono", sampleRate),
		"-t", strconv.Itoa(seconds),
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-b:a", audioBitrate,
		out,
	}
}

// concatArgs joins tone and silence and stamps the track metadata.
func concatArgs(listFile, title, artist, out string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-metadata", "title=" + title,
		"-metadata", "artist=" + artist,
		out,
	}
}

// Synthesize writes a placeholder mp3 to dest: a short tone followed by
// silence padding out to durationSeconds, tagged with title and artist.
// The file is assembled in a scratch directory and moved into place so
// readers never observe a partial file.
func (s *Synthesizer) Synthesize(dest, title, artist string, durationSeconds int) error {
	if durationSeconds <= toneSeconds {
		durationSeconds = toneSeconds + 1
	}

	workDir, err := os.MkdirTemp(filepath.Dir(dest), "synth-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	tonePath := filepath.Join(workDir, "tone.mp3")
	silencePath := filepath.Join(workDir, "silence.mp3")
	joinedPath := filepath.Join(workDir, "joined.mp3")

	ctx, cancel := context.WithTimeout(context.Background(), toneTimeout)
	err = s.run(ctx, s.ffmpegPath, toneArgs(tonePath)...)
	cancel()
	if err != nil {
		return fmt.Errorf("tone generation: %w", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), silenceTimeout)
	err = s.run(ctx, s.ffmpegPath, silenceArgs(durationSeconds-toneSeconds, silencePath)...)
	cancel()
	if err != nil {
		return fmt.Errorf("silence generation: %w", err)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	list := fmt.Sprintf("file '%s'\nfile '%s'\n", tonePath, silencePath)
	if err := os.WriteFile(listPath, []byte(list), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), concatTimeout)
	err = s.run(ctx, s.ffmpegPath, concatArgs(listPath, title, artist, joinedPath)...)
	cancel()
	if err != nil {
		return fmt.Errorf("concat: %w", err)
	}

	if err := os.Rename(joinedPath, dest); err != nil {
		return fmt.Errorf("failed to publish placeholder: %w", err)
	}

	log.Infof("%s Placeholder ready: %s (%ds, %q / %q)", logcolors.LogSynth, filepath.Base(dest), durationSeconds, title, artist)
	return nil
}

// WriteLyrics writes a minimal LRC file telling the listener the real
// track is still being fetched.
func WriteLyrics(dest, title, artist string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[ti:%s]\n", title)
	fmt.Fprintf(&buf, "[ar:%s]\n", artist)
	buf.WriteString("[00:00.00]Downloading audio...\n")
	buf.WriteString("[00:03.00]Please try again shortly\n")

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write lyrics: %w", err)
	}
	return os.Rename(tmp, dest)
}
