package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DefaultPageSize is used when Options.PageSize is zero
const DefaultPageSize = 20

const driverName = "sqlite3_blip"

func init() {
	// contains_fold gives Search Unicode-aware case folding and treats the
	// needle literally, unlike LIKE.
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("contains_fold", containsFold, true)
		},
	})
}

func containsFold(s, substr string) int {
	if strings.Contains(strings.ToLower(s), strings.ToLower(substr)) {
		return 1
	}
	return 0
}

// Options configures a DB
type Options struct {
	PageSize int
	Logger   logrus.FieldLogger
}

// DB wraps SQLite database operations
type DB struct {
	db       *sql.DB
	pageSize int
	log      logrus.FieldLogger
}

// Open opens or creates a SQLite database
func Open(path string, opts Options) (*DB, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, unavailable("open database", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, unavailable("enable WAL", err)
	}

	storage := &DB{
		db:       db,
		pageSize: opts.PageSize,
		log:      opts.Logger.WithField("component", "storage"),
	}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, unavailable("init schema", err)
	}

	storage.log.WithField("path", path).Debug("Database opened")
	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// PageSize is the number of comics returned per page
func (d *DB) PageSize() int {
	return d.pageSize
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS comics (
		num INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		month INTEGER NOT NULL DEFAULT 0,
		day INTEGER NOT NULL DEFAULT 0,
		img TEXT NOT NULL DEFAULT '',
		alt TEXT NOT NULL DEFAULT '',
		transcript TEXT NOT NULL DEFAULT '',
		favorite INTEGER NOT NULL DEFAULT 0,
		synced_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_favorite ON comics(favorite);
	`

	_, err := d.db.Exec(schema)
	return err
}

const comicColumns = `num, title, year, month, day, img, alt, transcript, favorite, synced_at`

// upsertQuery refreshes content but never touches favorite on conflict
const upsertQuery = `
	INSERT INTO comics (` + comicColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(num) DO UPDATE SET
		title = excluded.title,
		year = excluded.year,
		month = excluded.month,
		day = excluded.day,
		img = excluded.img,
		alt = excluded.alt,
		transcript = excluded.transcript,
		synced_at = excluded.synced_at
	`

func upsertArgs(c *Comic) []any {
	if c.SyncedAt.IsZero() {
		c.SyncedAt = time.Now()
	}
	return []any{
		c.Num, c.Title, c.Year, c.Month, c.Day, c.Img, c.Alt, c.Transcript, c.Favorite, c.SyncedAt,
	}
}

// Upsert inserts a comic or refreshes its content, keeping the favorite flag
func (d *DB) Upsert(ctx context.Context, c *Comic) error {
	if _, err := d.db.ExecContext(ctx, upsertQuery, upsertArgs(c)...); err != nil {
		return unavailable("upsert comic", err)
	}
	return nil
}

// UpsertBatch upserts comics in a single transaction
func (d *DB) UpsertBatch(ctx context.Context, comics []*Comic) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return unavailable("prepare batch", err)
	}
	defer stmt.Close()

	for _, c := range comics {
		if _, err := stmt.ExecContext(ctx, upsertArgs(c)...); err != nil {
			return unavailable("upsert batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit batch", err)
	}
	return nil
}

// Get retrieves a comic by number. It returns nil when absent.
func (d *DB) Get(ctx context.Context, num int) (*Comic, error) {
	query := `SELECT ` + comicColumns + ` FROM comics WHERE num = ?`

	c := &Comic{}
	err := scanComic(d.db.QueryRowContext(ctx, query, num), c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get comic", err)
	}
	return c, nil
}

// InitialPage returns the newest page of comics
func (d *DB) InitialPage(ctx context.Context) ([]Comic, error) {
	query := `SELECT ` + comicColumns + ` FROM comics ORDER BY num DESC LIMIT ?`
	return d.query(ctx, "initial page", query, d.pageSize)
}

// NextPage returns the page of comics strictly older than after. An empty
// result means the feed is exhausted.
func (d *DB) NextPage(ctx context.Context, after int) ([]Comic, error) {
	query := `SELECT ` + comicColumns + ` FROM comics WHERE num < ? ORDER BY num DESC LIMIT ?`
	return d.query(ctx, "next page", query, after, d.pageSize)
}

// Search matches the text case-insensitively against title, alt and
// transcript. An empty query matches nothing.
func (d *DB) Search(ctx context.Context, text string) ([]Comic, error) {
	if text == "" {
		return []Comic{}, nil
	}

	query := `
	SELECT ` + comicColumns + `
	FROM comics
	WHERE contains_fold(title, ?1) OR contains_fold(alt, ?1) OR contains_fold(transcript, ?1)
	ORDER BY num DESC
	`
	return d.query(ctx, "search", query, text)
}

// SetFavorite sets the favorite flag. Unknown numbers are ignored.
func (d *DB) SetFavorite(ctx context.Context, num int, favorite bool) error {
	res, err := d.db.ExecContext(ctx, "UPDATE comics SET favorite = ? WHERE num = ?", favorite, num)
	if err != nil {
		return unavailable("set favorite", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		d.log.WithField("num", num).Debug("Favorite for unknown comic ignored")
	}
	return nil
}

// Favorites lists favorite comics, newest first
func (d *DB) Favorites(ctx context.Context) ([]Comic, error) {
	query := `SELECT ` + comicColumns + ` FROM comics WHERE favorite = 1 ORDER BY num DESC`
	return d.query(ctx, "favorites", query)
}

// List retrieves all comics, newest first
func (d *DB) List(ctx context.Context) ([]Comic, error) {
	query := `SELECT ` + comicColumns + ` FROM comics ORDER BY num DESC`
	return d.query(ctx, "list", query)
}

// UpdateTranscript replaces the transcript of a stored comic
func (d *DB) UpdateTranscript(ctx context.Context, num int, transcript string) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE comics SET transcript = ?, synced_at = ? WHERE num = ?",
		transcript, time.Now(), num,
	)
	if err != nil {
		return unavailable("update transcript", err)
	}
	return nil
}

// Nums returns the set of stored comic numbers
func (d *DB) Nums(ctx context.Context) (map[int]bool, error) {
	nums, err := d.ints(ctx, "nums", "SELECT num FROM comics")
	if err != nil {
		return nil, err
	}

	set := make(map[int]bool, len(nums))
	for _, n := range nums {
		set[n] = true
	}
	return set, nil
}

// EmptyTranscripts returns the numbers of comics without a transcript
func (d *DB) EmptyTranscripts(ctx context.Context) ([]int, error) {
	return d.ints(ctx, "empty transcripts", "SELECT num FROM comics WHERE transcript = '' ORDER BY num DESC")
}

// Latest returns the highest stored comic number, or 0 when empty
func (d *DB) Latest(ctx context.Context) (int, error) {
	var latest int
	err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(num), 0) FROM comics").Scan(&latest)
	if err != nil {
		return 0, unavailable("latest", err)
	}
	return latest, nil
}

// Count returns the total number of comics
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comics").Scan(&count)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComic(row scanner, c *Comic) error {
	return row.Scan(
		&c.Num, &c.Title, &c.Year, &c.Month, &c.Day,
		&c.Img, &c.Alt, &c.Transcript, &c.Favorite, &c.SyncedAt,
	)
}

func (d *DB) query(ctx context.Context, op, query string, args ...any) ([]Comic, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	comics := []Comic{}
	for rows.Next() {
		var c Comic
		if err := scanComic(rows, &c); err != nil {
			return nil, unavailable(op, err)
		}
		comics = append(comics, c)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return comics, nil
}

func (d *DB) ints(ctx context.Context, op, query string) ([]int, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var nums []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, unavailable(op, err)
		}
		nums = append(nums, n)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return nums, nil
}
