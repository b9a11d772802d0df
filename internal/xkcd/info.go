package xkcd

import (
	"fmt"
	"strconv"

	"github.com/renderinc/blip/internal/storage"
)

// Info is the JSON document served at /{num}/info.0.json
type Info struct {
	Num        int    `json:"num"`
	Title      string `json:"title"`
	SafeTitle  string `json:"safe_title"`
	Year       string `json:"year"`
	Month      string `json:"month"`
	Day        string `json:"day"`
	Img        string `json:"img"`
	Alt        string `json:"alt"`
	Transcript string `json:"transcript"`
	Link       string `json:"link"`
	News       string `json:"news"`
}

// Comic converts the payload into a storable comic
func (i *Info) Comic() (*storage.Comic, error) {
	year, err := strconv.Atoi(i.Year)
	if err != nil {
		return nil, fmt.Errorf("comic %d year %q: %w", i.Num, i.Year, err)
	}
	month, err := strconv.Atoi(i.Month)
	if err != nil {
		return nil, fmt.Errorf("comic %d month %q: %w", i.Num, i.Month, err)
	}
	day, err := strconv.Atoi(i.Day)
	if err != nil {
		return nil, fmt.Errorf("comic %d day %q: %w", i.Num, i.Day, err)
	}

	title := i.SafeTitle
	if title == "" {
		title = i.Title
	}

	return &storage.Comic{
		Num:        i.Num,
		Title:      title,
		Year:       year,
		Month:      month,
		Day:        day,
		Img:        i.Img,
		Alt:        i.Alt,
		Transcript: i.Transcript,
	}, nil
}
