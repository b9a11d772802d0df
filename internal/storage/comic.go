package storage

import (
	"fmt"
	"time"
)

const (
	comicURLFormat   = "http://xkcd.com/%d"
	explainURLFormat = "http://www.explainxkcd.com/wiki/index.php/%d"
)

// Comic represents a cached comic
type Comic struct {
	Num        int       `db:"num" json:"num"`
	Title      string    `db:"title" json:"title"`
	Year       int       `db:"year" json:"year"`
	Month      int       `db:"month" json:"month"`
	Day        int       `db:"day" json:"day"`
	Img        string    `db:"img" json:"img"`
	Alt        string    `db:"alt" json:"alt"`
	Transcript string    `db:"transcript" json:"transcript"` // Empty when not published
	Favorite   bool      `db:"favorite" json:"favorite"`
	SyncedAt   time.Time `db:"synced_at" json:"-"` // When we last fetched it
}

// PublishedOn composes the stored date components
func (c *Comic) PublishedOn() time.Time {
	return time.Date(c.Year, time.Month(c.Month), c.Day, 0, 0, 0, 0, time.UTC)
}

// URL is the comic's page on xkcd.com
func (c *Comic) URL() string {
	return fmt.Sprintf(comicURLFormat, c.Num)
}

// ExplainURL is the comic's explainxkcd wiki page
func (c *Comic) ExplainURL() string {
	return fmt.Sprintf(explainURLFormat, c.Num)
}
