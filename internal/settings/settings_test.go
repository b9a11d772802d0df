package settings

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir(), testLogger())
	require.NoError(t, err, "Failed to open test settings store")
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestStore_Defaults(t *testing.T) {
	store := setupTestStore(t)

	firstRun, err := store.FirstRun()
	require.NoError(t, err)
	assert.True(t, firstRun)

	redownload, err := store.LastRedownloadTime()
	require.NoError(t, err)
	assert.Zero(t, redownload)

	transcript, err := store.LastTranscriptCheckTime()
	require.NoError(t, err)
	assert.Zero(t, transcript)
}

func TestStore_RoundTrip(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SetFirstRun(false))
	require.NoError(t, store.SetLastRedownloadTime(1700000000123))
	require.NoError(t, store.SetLastTranscriptCheckTime(42))

	firstRun, err := store.FirstRun()
	require.NoError(t, err)
	assert.False(t, firstRun)

	redownload, err := store.LastRedownloadTime()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), redownload)

	transcript, err := store.LastTranscriptCheckTime()
	require.NoError(t, err)
	assert.Equal(t, int64(42), transcript)
}

func TestStore_Persists(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.SetFirstRun(false))
	require.NoError(t, store.Close())

	store, err = Open(dir, testLogger())
	require.NoError(t, err)
	defer store.Close()

	firstRun, err := store.FirstRun()
	require.NoError(t, err)
	assert.False(t, firstRun)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	store, err := OpenInMemory(testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.LastRedownloadTime()
	assert.ErrorIs(t, err, ErrUnavailable)

	err = store.SetFirstRun(false)
	assert.ErrorIs(t, err, ErrUnavailable)
}
