package feed

import (
	"context"

	"github.com/renderinc/blip/internal/storage"
)

// Store is the data access the list layer needs
type Store interface {
	InitialPage(ctx context.Context) ([]storage.Comic, error)
	NextPage(ctx context.Context, after int) ([]storage.Comic, error)
	Search(ctx context.Context, text string) ([]storage.Comic, error)
	SetFavorite(ctx context.Context, num int, favorite bool) error
}

// Source produces the pages of one list session
type Source interface {
	First(ctx context.Context) ([]storage.Comic, error)
	// Next returns the page after the comic numbered after. Empty means done.
	Next(ctx context.Context, after int) ([]storage.Comic, error)
	Style() TitleStyle
}

type feedSource struct {
	store Store
}

// Feed pages through every comic, newest first
func Feed(store Store) Source {
	return feedSource{store: store}
}

func (s feedSource) First(ctx context.Context) ([]storage.Comic, error) {
	return s.store.InitialPage(ctx)
}

func (s feedSource) Next(ctx context.Context, after int) ([]storage.Comic, error) {
	return s.store.NextPage(ctx, after)
}

func (s feedSource) Style() TitleStyle { return TitlePlain }

type querySource struct {
	store Store
	text  string
}

// Query is a search result set. It has a single page.
func Query(store Store, text string) Source {
	return querySource{store: store, text: text}
}

func (s querySource) First(ctx context.Context) ([]storage.Comic, error) {
	if s.text == "" {
		return []storage.Comic{}, nil
	}
	return s.store.Search(ctx, s.text)
}

func (s querySource) Next(ctx context.Context, after int) ([]storage.Comic, error) {
	return []storage.Comic{}, nil
}

func (s querySource) Style() TitleStyle { return TitleNumbered }
