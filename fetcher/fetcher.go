// Package fetcher runs background audio downloads so playback can start
// from a placeholder while the real track arrives.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"

	"music-api-go/cache"
	"music-api-go/logcolors"
	"music-api-go/stats"
	"music-api-go/synth"
	"music-api-go/ytdlp"
)

// Task describes one background acquisition job.
type Task struct {
	Key    string // cache key, names the output files
	Query  string // free-text search query
	Title  string
	Artist string
}

// Downloader fetches audio for a search query. Satisfied by
// *ytdlp.Client.
type Downloader interface {
	Download(ctx context.Context, query string, opts ytdlp.DownloadOptions) error
}

// Coordinator owns the fetch queue and worker pool. Tasks are processed
// FIFO by a fixed number of workers; scheduling never blocks callers.
type Coordinator struct {
	store      *cache.Store
	client     Downloader
	queue      chan Task
	workers    int
	dlTimeout  time.Duration
	inFlight   sync.Map // key -> struct{}, dedupes scheduling
	tasksWG    sync.WaitGroup
	workersWG  sync.WaitGroup
	closeOnce  sync.Once

	// OnComplete, when set, is called after each task finishes with the
	// task and its terminal error (nil on success or skip).
	OnComplete func(Task, error)
}

// Config for the coordinator.
type Config struct {
	Workers         int
	QueueSize       int
	DownloadTimeout time.Duration
}

// New creates a coordinator and starts its workers.
func New(store *cache.Store, client Downloader, cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 5 * time.Minute
	}

	c := &Coordinator{
		store:     store,
		client:    client,
		queue:     make(chan Task, cfg.QueueSize),
		workers:   cfg.Workers,
		dlTimeout: cfg.DownloadTimeout,
	}

	for i := 0; i < cfg.Workers; i++ {
		c.workersWG.Add(1)
		go c.worker(i)
	}

	log.Infof("%s Coordinator started (%d workers, queue %d)", logcolors.LogFetch, cfg.Workers, cfg.QueueSize)
	return c
}

// Schedule queues a fetch task. Returns false if the task was dropped
// because the queue is full or the same key is already queued.
func (c *Coordinator) Schedule(task Task) bool {
	if _, loaded := c.inFlight.LoadOrStore(task.Key, struct{}{}); loaded {
		log.Debugf("%s Already queued, ignoring: %s", logcolors.LogFetch, task.Key)
		return false
	}

	c.tasksWG.Add(1)
	select {
	case c.queue <- task:
		log.Infof("%s Queued: %q (key %s)", logcolors.LogFetch, task.Query, task.Key)
		return true
	default:
		c.inFlight.Delete(task.Key)
		c.tasksWG.Done()
		stats.Get().RecordFetch("dropped")
		log.Warnf("%s Queue full, dropping: %q", logcolors.LogFetch, task.Query)
		return false
	}
}

// Flush blocks until every scheduled task has finished.
func (c *Coordinator) Flush() {
	c.tasksWG.Wait()
}

// Close stops accepting tasks and waits for workers to drain the queue.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.queue)
	})
	c.workersWG.Wait()
}

func (c *Coordinator) worker(id int) {
	defer c.workersWG.Done()
	for task := range c.queue {
		err := c.process(task)
		c.inFlight.Delete(task.Key)
		if c.OnComplete != nil {
			c.OnComplete(task, err)
		}
		c.tasksWG.Done()
	}
	log.Debugf("%s Worker %d exiting", logcolors.LogFetch, id)
}

// process runs one acquisition end to end: download, normalize the
// output name, clean temp files, enforce the cache size limit.
func (c *Coordinator) process(task Task) error {
	defer c.finalize(task)

	// The placeholder may have been replaced by a concurrent request
	// between scheduling and execution.
	if c.store.HasAudio(task.Key) {
		stats.Get().RecordFetch("skipped")
		log.Infof("%s Real audio already present, skipping: %s", logcolors.LogFetch, task.Key)
		return nil
	}

	logMemory("before download")

	ctx, cancel := context.WithTimeout(context.Background(), c.dlTimeout)
	defer cancel()

	template := filepath.Join(c.store.Dir(), task.Key+".%(ext)s")
	err := c.client.Download(ctx, task.Query, ytdlp.DownloadOptions{
		OutputTemplate: template,
		AudioBitrate:   "64k",
		SampleRate:     22050,
		Channels:       1,
	})
	if err != nil {
		stats.Get().RecordFetch("failed")
		log.Errorf("%s Download failed for %q: %v", logcolors.LogFetch, task.Query, err)
		return err
	}

	if err := c.adoptDownload(task.Key); err != nil {
		stats.Get().RecordFetch("failed")
		log.Errorf("%s %v", logcolors.LogFetch, err)
		return err
	}

	stats.Get().RecordFetch("completed")
	log.Infof("%s Completed: %q (key %s)", logcolors.LogFetch, task.Query, task.Key)
	return nil
}

// adoptDownload makes sure the final mp3 is in place. If the mp3
// postprocessing step failed, a raw .webm or .m4a may be all we got;
// serve that under the mp3 name rather than nothing.
func (c *Coordinator) adoptDownload(key string) error {
	final := c.store.AudioPath(key)
	if c.store.HasAudio(key) {
		return nil
	}

	for _, ext := range []string{".webm", ".m4a"} {
		raw := filepath.Join(c.store.Dir(), key+ext)
		info, err := os.Stat(raw)
		if err != nil || info.Size() == 0 {
			continue
		}
		if err := os.Rename(raw, final); err != nil {
			return fmt.Errorf("failed to adopt %s: %v", filepath.Base(raw), err)
		}
		log.Warnf("%s Postprocessing incomplete, serving raw container as %s", logcolors.LogFetch, filepath.Base(final))
		return nil
	}

	return fmt.Errorf("download produced no usable audio for key %s", key)
}

// finalize runs the per-task housekeeping that must happen on every
// outcome: temp cleanup, lyric presence, size enforcement.
func (c *Coordinator) finalize(task Task) {
	c.store.CleanupTemp(task.Key)

	if !c.store.HasLyrics(task.Key) {
		if err := synth.WriteLyrics(c.store.LyricPath(task.Key), task.Title, task.Artist); err != nil {
			log.Warnf("%s Failed to write lyrics for %s: %v", logcolors.LogFetch, task.Key, err)
		}
	}

	removed, freed := c.store.EnforceLimit()
	if removed > 0 {
		stats.Get().RecordEviction(removed, freed)
		log.Infof("%s Evicted %d files (%d bytes freed)", logcolors.LogEvict, removed, freed)
	}
}

// logMemory logs current system memory usage at debug level.
func logMemory(phase string) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	log.Debugf("%s Memory %s: %.1f%% used (%d MB available)",
		logcolors.LogFetch, phase, vm.UsedPercent, vm.Available/1024/1024)
}
