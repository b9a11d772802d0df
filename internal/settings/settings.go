package settings

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable marks failures of the underlying key-value store
var ErrUnavailable = errors.New("settings unavailable")

const (
	keyFirstRun       = "FIRST_RUN"
	keyRedownloadTime = "REDOWNLOAD_TIME"
	keyTranscriptTime = "TRANSCRIPT_TIME"
)

// Store keeps the small set of process-wide preferences in BadgerDB.
// It is created once at startup and handed to whoever needs it.
type Store struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// Open opens the settings store at path
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	return open(badger.DefaultOptions(path), logger)
}

// OpenInMemory opens a store that is never written to disk
func OpenInMemory(logger logrus.FieldLogger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger logrus.FieldLogger) (*Store, error) {
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open settings store")
		return nil, fmt.Errorf("open settings at %q: %w: %w", opts.Dir, ErrUnavailable, err)
	}

	return &Store{
		db:  db,
		log: logger.WithField("component", "settings"),
	}, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}

// FirstRun reports whether the initial download has not completed yet
func (s *Store) FirstRun() (bool, error) {
	raw, ok, err := s.get(keyFirstRun)
	if err != nil || !ok {
		return true, err
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true, fmt.Errorf("parse %s: %w", keyFirstRun, err)
	}
	return v, nil
}

// SetFirstRun records the first-run flag
func (s *Store) SetFirstRun(firstRun bool) error {
	return s.set(keyFirstRun, strconv.FormatBool(firstRun))
}

// LastRedownloadTime is the unix millisecond time of the last full download
func (s *Store) LastRedownloadTime() (int64, error) {
	return s.getInt(keyRedownloadTime)
}

// SetLastRedownloadTime records the last full download time
func (s *Store) SetLastRedownloadTime(ms int64) error {
	return s.set(keyRedownloadTime, strconv.FormatInt(ms, 10))
}

// LastTranscriptCheckTime is the unix millisecond time transcripts were last refreshed
func (s *Store) LastTranscriptCheckTime() (int64, error) {
	return s.getInt(keyTranscriptTime)
}

// SetLastTranscriptCheckTime records the last transcript refresh time
func (s *Store) SetLastTranscriptCheckTime(ms int64) error {
	return s.set(keyTranscriptTime, strconv.FormatInt(ms, 10))
}

func (s *Store) getInt(key string) (int64, error) {
	raw, ok, err := s.get(key)
	if err != nil || !ok {
		return 0, err
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) get(key string) (string, bool, error) {
	var raw string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		raw = string(val)
		return nil
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to read setting")
		return "", false, fmt.Errorf("get %s: %w: %w", key, ErrUnavailable, err)
	}
	return raw, true, nil
}

func (s *Store) set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)))
	})
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to write setting")
		return fmt.Errorf("set %s: %w: %w", key, ErrUnavailable, err)
	}

	s.log.WithFields(logrus.Fields{"key": key, "value": value}).Debug("Setting saved")
	return nil
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
