package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/renderinc/blip/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrNoSuchRow is returned when a gesture targets a row that is not loaded
var ErrNoSuchRow = errors.New("no such row")

// List is the adapter between a comic sequence and its rendered rows.
// Every mutation fires one change notification.
type List struct {
	store    Store
	host     Host
	style    TitleStyle
	comics   []storage.Comic
	onChange func()
	log      logrus.FieldLogger
}

// NewList creates an empty list
func NewList(store Store, host Host, logger logrus.FieldLogger) *List {
	return &List{
		store:  store,
		host:   host,
		comics: []storage.Comic{},
		log:    logger.WithField("component", "list"),
	}
}

// OnChange registers the re-render callback
func (l *List) OnChange(fn func()) {
	l.onChange = fn
}

func (l *List) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}

// SetStyle changes how titles are rendered
func (l *List) SetStyle(style TitleStyle) {
	l.style = style
}

// Style is the current title style
func (l *List) Style() TitleStyle {
	return l.style
}

// AddComics appends a page
func (l *List) AddComics(comics []storage.Comic) {
	l.comics = append(l.comics, comics...)
	l.notify()
}

// UpdateList replaces the whole sequence
func (l *List) UpdateList(comics []storage.Comic) {
	l.comics = append([]storage.Comic{}, comics...)
	l.notify()
}

// Len is the number of loaded comics
func (l *List) Len() int {
	return len(l.comics)
}

// Comic returns the comic at i
func (l *List) Comic(i int) (storage.Comic, bool) {
	if i < 0 || i >= len(l.comics) {
		return storage.Comic{}, false
	}
	return l.comics[i], true
}

// Row renders the comic at i
func (l *List) Row(i int) (Row, bool) {
	c, ok := l.Comic(i)
	if !ok {
		return Row{}, false
	}
	return MapRow(c, l.style), true
}

// Rows renders every loaded comic
func (l *List) Rows() []Row {
	return MapRows(l.comics, l.style)
}

// LastNum is the number of the last loaded comic
func (l *List) LastNum() (int, bool) {
	if len(l.comics) == 0 {
		return 0, false
	}
	return l.comics[len(l.comics)-1].Num, true
}

// Dispatch runs the action registered for gesture on row i
func (l *List) Dispatch(ctx context.Context, i int, g Gesture) error {
	act, ok := actions[g]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownGesture, g)
	}
	if i < 0 || i >= len(l.comics) {
		return fmt.Errorf("%w: %d", ErrNoSuchRow, i)
	}

	l.log.WithFields(logrus.Fields{"num": l.comics[i].Num, "gesture": g}).Debug("Dispatching gesture")
	return act(l, ctx, i)
}

// toggleFavorite flips the flag in memory, then confirms it against the
// store. A failed write rolls the flag back.
func (l *List) toggleFavorite(ctx context.Context, i int) error {
	num := l.comics[i].Num
	want := !l.comics[i].Favorite

	l.comics[i].Favorite = want
	l.notify()

	if err := l.store.SetFavorite(ctx, num, want); err != nil {
		l.log.WithError(err).WithField("num", num).Warn("Favorite not saved, rolling back")
		l.comics[i].Favorite = !want
		l.notify()
		return fmt.Errorf("set favorite %d: %w", num, err)
	}
	return nil
}
