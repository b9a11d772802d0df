package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/renderinc/blip/internal/feed"
	"github.com/renderinc/blip/internal/search"
	"github.com/renderinc/blip/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db  *storage.DB
	srv *httptest.Server
}

func setupServer(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := storage.Open(filepath.Join(t.TempDir(), "blip.db"), storage.Options{PageSize: 2, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx, err := search.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	comics := []*storage.Comic{
		{Num: 1, Title: "Barrel - Part 1", Year: 2006, Month: 1, Day: 1, Alt: "Don't we all."},
		{Num: 2, Title: "Petit Trees (sketch)", Year: 2006, Month: 1, Day: 1, Alt: "'Petit' being a reference to Le Petit Prince"},
		{Num: 353, Title: "Python", Year: 2007, Month: 12, Day: 5, Alt: "I wrote 20 short programs in Python yesterday.", Transcript: "[[ Guy 1 is talking to Guy 2, who is floating in the sky ]]"},
	}
	ctx := context.Background()
	require.NoError(t, db.UpsertBatch(ctx, comics))
	for _, c := range comics {
		require.NoError(t, idx.IndexComic(c))
	}

	srv := httptest.NewServer(NewServer(db, idx, logger).Handler())
	t.Cleanup(srv.Close)

	return &fixture{db: db, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func rowNums(rows []feed.Row) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Num)
	}
	return out
}

func TestServer_Feed(t *testing.T) {
	f := setupServer(t)

	resp := f.do(t, http.MethodGet, "/api/feed")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decode[[]feed.Row](t, resp)
	assert.Equal(t, []int{353, 2}, rowNums(rows))
	assert.Equal(t, "Python", rows[0].Title)
	assert.Equal(t, "December 05, 2007 (Wednesday)", rows[0].Date)

	resp = f.do(t, http.MethodGet, "/api/feed?after=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int{1}, rowNums(decode[[]feed.Row](t, resp)))

	resp = f.do(t, http.MethodGet, "/api/feed?after=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]feed.Row](t, resp))

	resp = f.do(t, http.MethodGet, "/api/feed?after=last")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Search(t *testing.T) {
	f := setupServer(t)

	resp := f.do(t, http.MethodGet, "/api/search?q=PYTH")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decode[[]feed.Row](t, resp)
	require.Len(t, rows, 1)
	assert.Equal(t, "353. Python", rows[0].Title)

	resp = f.do(t, http.MethodGet, "/api/search?q=")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows = decode[[]feed.Row](t, resp)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestServer_Keyword(t *testing.T) {
	f := setupServer(t)

	resp := f.do(t, http.MethodGet, "/api/keyword?q=yesterday&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[[]search.Result](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, 353, results[0].Num)

	resp = f.do(t, http.MethodGet, "/api/keyword?q=python&limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Favorites(t *testing.T) {
	f := setupServer(t)

	resp := f.do(t, http.MethodPut, "/api/comics/2/favorite")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/favorites")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decode[[]feed.Row](t, resp)
	assert.Equal(t, []int{2}, rowNums(rows))
	assert.True(t, rows[0].Favorite)

	resp = f.do(t, http.MethodDelete, "/api/comics/2/favorite")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/favorites")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]feed.Row](t, resp))

	resp = f.do(t, http.MethodPut, "/api/comics/9999/favorite")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "Unknown comics are a silent no-op")

	resp = f.do(t, http.MethodPut, "/api/comics/abc/favorite")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_GetComic(t *testing.T) {
	f := setupServer(t)

	resp := f.do(t, http.MethodGet, "/api/comics/353")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := decode[comicResponse](t, resp)
	assert.Equal(t, 353, c.Num)
	assert.Equal(t, "http://www.explainxkcd.com/wiki/index.php/353", c.ExplainURL)
	assert.Equal(t, 2007, c.Published.Year())

	resp = f.do(t, http.MethodGet, "/api/comics/404")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StorageUnavailable(t *testing.T) {
	f := setupServer(t)
	require.NoError(t, f.db.Close())

	resp := f.do(t, http.MethodGet, "/api/feed")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.True(t, body.Retry)

	resp = f.do(t, http.MethodPut, "/api/comics/1/favorite")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	f := setupServer(t)

	resp := f.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["comics_in_db"])
	assert.EqualValues(t, 3, body["comics_in_index"])
}
