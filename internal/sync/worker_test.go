package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/renderinc/blip/internal/search"
	"github.com/renderinc/blip/internal/settings"
	"github.com/renderinc/blip/internal/storage"
	"github.com/renderinc/blip/internal/xkcd"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves comics from memory and records which numbers were fetched.
type fakeFetcher struct {
	mu     gosync.Mutex
	latest int
	comics map[int]*xkcd.Info
	calls  []int
}

func newFakeFetcher(latest int, missing ...int) *fakeFetcher {
	f := &fakeFetcher{comics: map[int]*xkcd.Info{}}
	f.setLatest(latest, missing...)
	return f
}

func (f *fakeFetcher) setLatest(latest int, missing ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	skip := map[int]bool{}
	for _, n := range missing {
		skip[n] = true
	}
	for n := 1; n <= latest; n++ {
		if skip[n] {
			continue
		}
		if _, ok := f.comics[n]; !ok {
			f.comics[n] = &xkcd.Info{
				Num: n, SafeTitle: fmt.Sprintf("Comic %d", n),
				Year: "2010", Month: "3", Day: "14",
				Img: fmt.Sprintf("https://imgs.xkcd.com/comics/%d.png", n),
			}
		}
	}
	f.latest = latest
	f.calls = nil
}

func (f *fakeFetcher) setTranscript(num int, transcript string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comics[num].Transcript = transcript
}

func (f *fakeFetcher) Latest(ctx context.Context) (*xkcd.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := *f.comics[f.latest]
	return &info, nil
}

func (f *fakeFetcher) Get(ctx context.Context, num int) (*xkcd.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, num)

	info, ok := f.comics[num]
	if !ok {
		return nil, xkcd.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (f *fakeFetcher) fetched() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.calls...)
	sort.Ints(out)
	return out
}

type fixture struct {
	db       *storage.DB
	index    *search.Index
	settings *settings.Store
	now      time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := storage.Open(filepath.Join(t.TempDir(), "blip.db"), storage.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx, err := search.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store, err := settings.OpenInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &fixture{db: db, index: idx, settings: store, now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixture) worker(fetcher Fetcher) *Worker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewWorker(fetcher, f.db, f.index, f.settings, Options{
		Concurrency:        3,
		TranscriptRefresh:  24 * time.Hour,
		RedownloadInterval: 30 * 24 * time.Hour,
		Now:                func() time.Time { return f.now },
	}, logger)
}

func TestWorker_FirstRunDownloadsEverything(t *testing.T) {
	f := setup(t)
	fetcher := newFakeFetcher(6, 4)
	ctx := context.Background()

	stats, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)

	assert.True(t, stats.Full)
	assert.Equal(t, 6, stats.Latest)
	assert.Equal(t, 5, stats.Fetched)
	assert.Equal(t, 5, stats.New)
	assert.Equal(t, 1, stats.Skipped, "Comic 4 does not exist remotely")
	assert.Zero(t, stats.Errors)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, fetcher.fetched(), "The latest comic should not be fetched twice")

	count, err := f.db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	indexed, err := f.index.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), indexed)

	firstRun, err := f.settings.FirstRun()
	require.NoError(t, err)
	assert.False(t, firstRun)

	redownload, err := f.settings.LastRedownloadTime()
	require.NoError(t, err)
	assert.Equal(t, f.now.UnixMilli(), redownload)
}

func TestWorker_IncrementalSync(t *testing.T) {
	f := setup(t)
	fetcher := newFakeFetcher(6, 4)
	ctx := context.Background()

	_, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)

	fetcher.setLatest(8, 4)
	f.now = f.now.Add(time.Hour)

	stats, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)

	assert.False(t, stats.Full)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, []int{4, 7}, fetcher.fetched(), "Only missing comics should be fetched")

	page, err := f.db.InitialPage(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, page)
	assert.Equal(t, 8, page[0].Num)
}

func TestWorker_FullRedownloadKeepsFavorites(t *testing.T) {
	f := setup(t)
	fetcher := newFakeFetcher(3)
	ctx := context.Background()

	_, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, f.db.SetFavorite(ctx, 2, true))

	f.now = f.now.Add(31 * 24 * time.Hour)
	fetcher.setLatest(3)

	stats, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Full)
	assert.Equal(t, 3, stats.Updated)

	c, err := f.db.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, c.Favorite)
}

func TestWorker_RefreshesEmptyTranscripts(t *testing.T) {
	f := setup(t)
	fetcher := newFakeFetcher(3)
	ctx := context.Background()

	_, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)

	checked, err := f.settings.LastTranscriptCheckTime()
	require.NoError(t, err)
	assert.Equal(t, f.now.UnixMilli(), checked)

	fetcher.setTranscript(2, "[[A stick figure sits at a desk]]")

	// Not due yet
	f.now = f.now.Add(time.Hour)
	stats, err := f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Transcripts)

	f.now = f.now.Add(2 * 24 * time.Hour)
	stats, err = f.worker(fetcher).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Transcripts)

	c, err := f.db.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "[[A stick figure sits at a desk]]", c.Transcript)

	results, err := f.index.Search("desk", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Num)
}

func TestWorker_MaxComics(t *testing.T) {
	f := setup(t)
	fetcher := newFakeFetcher(10)

	w := f.worker(fetcher)
	w.opts.MaxComics = 3

	stats, err := w.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, []int{8, 9}, fetcher.fetched())
}

func TestWorker_StorageFailureAborts(t *testing.T) {
	f := setup(t)
	fetcher := newFakeFetcher(3)
	require.NoError(t, f.db.Close())

	_, err := f.worker(fetcher).Sync(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
