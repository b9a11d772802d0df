package feed

import (
	"strconv"

	"github.com/renderinc/blip/internal/storage"
)

// DateLayout renders a publication date, e.g. "December 05, 2007 (Wednesday)"
const DateLayout = "January 02, 2006 (Monday)"

// NoTranscript replaces an empty transcript
const NoTranscript = "No transcript available for this comic yet."

// TitleStyle selects how a row title is rendered
type TitleStyle int

const (
	// TitlePlain shows the title alone (feed)
	TitlePlain TitleStyle = iota
	// TitleNumbered prefixes the comic number (search results)
	TitleNumbered
)

// Row holds the rendered fields of one comic
type Row struct {
	Num        int    `json:"num"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	Alt        string `json:"alt"`
	Img        string `json:"img"`
	Transcript string `json:"transcript"`
	Favorite   bool   `json:"favorite"`
	URL        string `json:"url"`
	ExplainURL string `json:"explain_url"`
}

// MapRow renders a comic
func MapRow(c storage.Comic, style TitleStyle) Row {
	title := c.Title
	if style == TitleNumbered {
		title = strconv.Itoa(c.Num) + ". " + c.Title
	}

	transcript := c.Transcript
	if transcript == "" {
		transcript = NoTranscript
	}

	return Row{
		Num:        c.Num,
		Title:      title,
		Date:       c.PublishedOn().Format(DateLayout),
		Alt:        c.Alt,
		Img:        c.Img,
		Transcript: transcript,
		Favorite:   c.Favorite,
		URL:        c.URL(),
		ExplainURL: c.ExplainURL(),
	}
}

// MapRows renders comics in order
func MapRows(comics []storage.Comic, style TitleStyle) []Row {
	rows := make([]Row, 0, len(comics))
	for _, c := range comics {
		rows = append(rows, MapRow(c, style))
	}
	return rows
}
