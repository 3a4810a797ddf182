package fetcher

import (
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
)

// Helper binaries that can outlive their parent when a download is
// cancelled mid-flight.
var sweepTargets = []string{"ffmpeg", "yt-dlp"}

// SweepOrphans kills ffmpeg and yt-dlp processes that have been running
// longer than maxAge. Returns the number of processes killed.
func SweepOrphans(maxAge time.Duration) int {
	procs, err := process.Processes()
	if err != nil {
		log.Warnf("%s Failed to list processes: %v", logcolors.LogSweep, err)
		return 0
	}

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	killed := 0

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if !isSweepTarget(name) {
			continue
		}

		created, err := p.CreateTime()
		if err != nil || created > cutoff {
			continue
		}

		if err := p.Kill(); err != nil {
			log.Warnf("%s Failed to kill orphan %s (pid %d): %v", logcolors.LogSweep, name, p.Pid, err)
			continue
		}
		killed++
		log.Warnf("%s Killed orphan %s (pid %d, age > %v)", logcolors.LogSweep, name, p.Pid, maxAge)
	}

	return killed
}

func isSweepTarget(name string) bool {
	lower := strings.ToLower(name)
	for _, target := range sweepTargets {
		if strings.HasPrefix(lower, target) {
			return true
		}
	}
	return false
}

// StartSweeper runs SweepOrphans periodically until stop is closed.
func StartSweeper(interval, maxAge time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				SweepOrphans(maxAge)
			case <-stop:
				return
			}
		}
	}()
	log.Infof("%s Orphan sweeper started (every %v, max age %v)", logcolors.LogSweep, interval, maxAge)
}
