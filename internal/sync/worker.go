package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renderinc/blip/internal/search"
	"github.com/renderinc/blip/internal/settings"
	"github.com/renderinc/blip/internal/storage"
	"github.com/renderinc/blip/internal/xkcd"
	"github.com/sirupsen/logrus"
)

// Fetcher is the remote comic source
type Fetcher interface {
	Latest(ctx context.Context) (*xkcd.Info, error)
	Get(ctx context.Context, num int) (*xkcd.Info, error)
}

// Options tunes a Worker
type Options struct {
	Concurrency        int
	TranscriptRefresh  time.Duration
	RedownloadInterval time.Duration // 0 disables periodic full downloads
	MaxComics          int           // Limit for testing (0 = unlimited)
	Now                func() time.Time
}

// Worker keeps the local cache in step with xkcd.com
type Worker struct {
	client   Fetcher
	db       *storage.DB
	index    *search.Index
	settings *settings.Store
	opts     Options
	log      logrus.FieldLogger
}

// NewWorker creates a new sync worker. index may be nil.
func NewWorker(client Fetcher, db *storage.DB, index *search.Index, store *settings.Store, opts Options, logger logrus.FieldLogger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Worker{
		client:   client,
		db:       db,
		index:    index,
		settings: store,
		opts:     opts,
		log:      logger.WithField("component", "sync"),
	}
}

// Stats holds sync statistics
type Stats struct {
	Latest      int
	Full        bool
	Fetched     int
	New         int
	Updated     int
	Skipped     int
	Transcripts int
	Errors      int
	Duration    time.Duration
}

// Sync fetches new comics (or all of them on a full pass) and refreshes
// empty transcripts when they are due. Storage failures abort the sync.
func (w *Worker) Sync(ctx context.Context) (*Stats, error) {
	start := w.opts.Now()
	stats := &Stats{}
	var mu sync.Mutex

	latest, err := w.client.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest: %w", err)
	}
	stats.Latest = latest.Num

	full, err := w.needsFullDownload(start)
	if err != nil {
		return nil, err
	}
	stats.Full = full

	have, err := w.db.Nums(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored comics: %w", err)
	}

	var todo []int
	for n := latest.Num - 1; n >= 1; n-- {
		if full || !have[n] {
			todo = append(todo, n)
		}
	}
	// The latest comic counts towards the limit
	if w.opts.MaxComics > 0 && len(todo) >= w.opts.MaxComics {
		todo = todo[:w.opts.MaxComics-1]
	}

	w.log.WithFields(logrus.Fields{
		"latest":  latest.Num,
		"stored":  len(have),
		"pending": len(todo) + 1,
		"full":    full,
	}).Info("Starting sync")

	fetched := make(map[int]bool, len(todo)+1)
	saveComic := func(ctx context.Context, info *xkcd.Info) error {
		mu.Lock()
		stats.Fetched++
		fetched[info.Num] = true
		mu.Unlock()
		return w.save(ctx, info, have[info.Num], stats, &mu)
	}

	if err := saveComic(ctx, latest); err != nil {
		return nil, err
	}
	if err := w.fetchAll(ctx, todo, saveComic, stats, &mu); err != nil {
		return nil, err
	}

	if full {
		if err := w.settings.SetFirstRun(false); err != nil {
			return nil, err
		}
		if err := w.settings.SetLastRedownloadTime(start.UnixMilli()); err != nil {
			return nil, err
		}
	}

	if err := w.refreshTranscripts(ctx, start, fetched, stats, &mu); err != nil {
		return nil, err
	}

	stats.Duration = w.opts.Now().Sub(start)
	w.log.WithFields(logrus.Fields{
		"fetched":     stats.Fetched,
		"new":         stats.New,
		"updated":     stats.Updated,
		"skipped":     stats.Skipped,
		"transcripts": stats.Transcripts,
		"errors":      stats.Errors,
	}).Info("Sync complete")

	return stats, nil
}

func (w *Worker) needsFullDownload(now time.Time) (bool, error) {
	firstRun, err := w.settings.FirstRun()
	if err != nil {
		return false, err
	}
	if firstRun {
		return true, nil
	}
	if w.opts.RedownloadInterval <= 0 {
		return false, nil
	}

	last, err := w.settings.LastRedownloadTime()
	if err != nil {
		return false, err
	}
	return now.Sub(time.UnixMilli(last)) >= w.opts.RedownloadInterval, nil
}

// refreshTranscripts refetches comics whose transcript was empty, skipping
// the ones this run already fetched.
func (w *Worker) refreshTranscripts(ctx context.Context, now time.Time, fetched map[int]bool, stats *Stats, mu *sync.Mutex) error {
	last, err := w.settings.LastTranscriptCheckTime()
	if err != nil {
		return err
	}
	if now.Sub(time.UnixMilli(last)) < w.opts.TranscriptRefresh {
		return nil
	}

	empty, err := w.db.EmptyTranscripts(ctx)
	if err != nil {
		return fmt.Errorf("load empty transcripts: %w", err)
	}

	var todo []int
	for _, n := range empty {
		if !fetched[n] {
			todo = append(todo, n)
		}
	}
	w.log.WithField("pending", len(todo)).Info("Refreshing transcripts")

	err = w.fetchAll(ctx, todo, func(ctx context.Context, info *xkcd.Info) error {
		if info.Transcript == "" {
			return nil
		}
		if err := w.db.UpdateTranscript(ctx, info.Num, info.Transcript); err != nil {
			return fmt.Errorf("update transcript %d: %w", info.Num, err)
		}

		mu.Lock()
		stats.Transcripts++
		mu.Unlock()

		if w.index == nil {
			return nil
		}
		c, err := w.db.Get(ctx, info.Num)
		if err != nil {
			return fmt.Errorf("reload comic %d: %w", info.Num, err)
		}
		if c != nil {
			if err := w.index.IndexComic(c); err != nil {
				w.log.WithError(err).WithField("num", info.Num).Warn("Failed to index comic")
			}
		}
		return nil
	}, stats, mu)
	if err != nil {
		return err
	}

	return w.settings.SetLastTranscriptCheckTime(now.UnixMilli())
}

// fetchAll fetches nums with a bounded pool and hands each payload to handle.
// Missing comics are skipped and fetch errors counted; an error from handle
// stops the pool and is returned.
func (w *Worker) fetchAll(ctx context.Context, nums []int, handle func(context.Context, *xkcd.Info) error, stats *Stats, mu *sync.Mutex) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for num := range jobs {
				info, err := w.client.Get(ctx, num)
				if errors.Is(err, xkcd.ErrNotFound) {
					mu.Lock()
					stats.Skipped++
					mu.Unlock()
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.log.WithError(err).WithField("num", num).Warn("Failed to fetch comic")
					mu.Lock()
					stats.Errors++
					mu.Unlock()
					continue
				}

				if err := handle(ctx, info); err != nil {
					cancel(err)
					return
				}
			}
		}()
	}

feed:
	for _, num := range nums {
		select {
		case jobs <- num:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return context.Cause(ctx)
}

// save stores and indexes a single comic
func (w *Worker) save(ctx context.Context, info *xkcd.Info, existed bool, stats *Stats, mu *sync.Mutex) error {
	c, err := info.Comic()
	if err != nil {
		w.log.WithError(err).WithField("num", info.Num).Warn("Skipping malformed comic")
		mu.Lock()
		stats.Errors++
		mu.Unlock()
		return nil
	}

	if err := w.db.Upsert(ctx, c); err != nil {
		return fmt.Errorf("upsert comic %d: %w", c.Num, err)
	}

	if w.index != nil {
		if err := w.index.IndexComic(c); err != nil {
			w.log.WithError(err).WithField("num", c.Num).Warn("Failed to index comic")
			mu.Lock()
			stats.Errors++
			mu.Unlock()
		}
	}

	mu.Lock()
	if existed {
		stats.Updated++
	} else {
		stats.New++
	}
	mu.Unlock()

	w.log.WithFields(logrus.Fields{"num": c.Num, "title": c.Title}).Debug("Synced comic")
	return nil
}
