package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/renderinc/blip/internal/storage"
)

// rebuildBatchSize bounds how many comics go into one Bleve batch
const rebuildBatchSize = 200

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedComic represents a comic in the search index
type IndexedComic struct {
	Num        int
	Title      string
	Alt        string
	Transcript string
}

// Result represents a search result
type Result struct {
	Num       int                 `json:"num"`
	Title     string              `json:"title"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"` // Highlighted snippets
}

// Lister is the storage the index is rebuilt from
type Lister interface {
	List(ctx context.Context) ([]storage.Comic, error)
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// NewMemOnly creates an index that lives only in memory
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping creates the comic mapping. Title and transcript use the
// English analyzer for stemming; alt text is kept with the standard one.
func buildIndexMapping() mapping.IndexMapping {
	englishText := bleve.NewTextFieldMapping()
	englishText.Analyzer = "en"

	storedTitle := bleve.NewTextFieldMapping()
	storedTitle.Analyzer = "en"
	storedTitle.Store = true

	num := bleve.NewNumericFieldMapping()
	num.Store = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Num", num)
	docMapping.AddFieldMappingsAt("Title", storedTitle)
	docMapping.AddFieldMappingsAt("Alt", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Transcript", englishText)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

func docID(num int) string {
	return strconv.Itoa(num)
}

func toIndexed(c *storage.Comic) *IndexedComic {
	return &IndexedComic{
		Num:        c.Num,
		Title:      c.Title,
		Alt:        c.Alt,
		Transcript: c.Transcript,
	}
}

// IndexComic adds or updates a comic in the index
func (i *Index) IndexComic(c *storage.Comic) error {
	return i.index.Index(docID(c.Num), toIndexed(c))
}

// Delete removes a comic from the index
func (i *Index) Delete(num int) error {
	return i.index.Delete(docID(num))
}

// Search performs a ranked keyword query. The query string supports
// quotes, +/- operators and fuzzy ~ suffixes.
func (i *Index) Search(queryStr string, limit int) ([]*Result, error) {
	if queryStr == "" {
		return []*Result{}, nil
	}

	query := bleve.NewQueryStringQuery(queryStr)

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Fields = []string{"Num", "Title"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		result := &Result{
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if num, ok := hit.Fields["Num"].(float64); ok {
			result.Num = int(num)
		} else if num, err := strconv.Atoi(hit.ID); err == nil {
			result.Num = num
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}

		results = append(results, result)
	}

	return results, nil
}

// Rebuild indexes every stored comic in batches. progress may be nil.
func (i *Index) Rebuild(ctx context.Context, db Lister, progress func(current, total int)) error {
	comics, err := db.List(ctx)
	if err != nil {
		return fmt.Errorf("list comics: %w", err)
	}

	total := len(comics)
	batch := i.index.NewBatch()
	for n := range comics {
		if err := ctx.Err(); err != nil {
			return err
		}

		c := &comics[n]
		if err := batch.Index(docID(c.Num), toIndexed(c)); err != nil {
			return fmt.Errorf("batch index %d: %w", c.Num, err)
		}

		if batch.Size() >= rebuildBatchSize || n == total-1 {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
			if progress != nil {
				progress(n+1, total)
			}
		}
	}

	return nil
}

// Count returns the number of comics in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
