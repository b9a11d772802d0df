package feed

import (
	"context"
	"sync"

	"github.com/renderinc/blip/internal/storage"
	"github.com/sirupsen/logrus"
)

// DefaultThreshold is how close to the end of the list (in rows) the last
// visible row must be before the next page is requested
const DefaultThreshold = 4

// State is the Controller's request state
type State int

const (
	// Idle means no request is outstanding
	Idle State = iota
	// Requested means a page request is in flight
	Requested
	// Failed means the last request failed; only Retry or Reset leave it
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type fetchFunc func(ctx context.Context) ([]storage.Comic, error)

// Controller loads pages into a List as the user scrolls. All methods must
// be called from inside the Loop.
type Controller struct {
	list      *List
	loop      *Loop
	threshold int
	log       logrus.FieldLogger

	source    Source
	session   uint64
	state     State
	exhausted bool
	err       error
	retry     func(ctx context.Context)
	discarded int
	onError   func(error)

	inflight sync.WaitGroup
}

// NewController creates a controller feeding list. A negative threshold
// uses DefaultThreshold.
func NewController(list *List, loop *Loop, threshold int, logger logrus.FieldLogger) *Controller {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Controller{
		list:      list,
		loop:      loop,
		threshold: threshold,
		log:       logger.WithField("component", "scroll"),
	}
}

// OnError registers a callback for failed requests
func (c *Controller) OnError(fn func(error)) {
	c.onError = fn
}

// State is the current request state
func (c *Controller) State() State { return c.state }

// Exhausted reports whether the source has no more pages
func (c *Controller) Exhausted() bool { return c.exhausted }

// Err is the error of the last failed request
func (c *Controller) Err() error { return c.err }

// Discarded counts results dropped because a newer session replaced theirs
func (c *Controller) Discarded() int { return c.discarded }

// Reset starts a new session over src. The list is cleared and results of
// requests from earlier sessions will be discarded.
func (c *Controller) Reset(ctx context.Context, src Source) {
	c.session++
	c.source = src
	c.exhausted = false
	c.err = nil

	c.list.SetStyle(src.Style())
	c.list.UpdateList(nil)

	c.request(ctx, true, src.First)
}

// Scrolled reports the last visible row. It requests the next page when
// that row is within the threshold of the end and nothing is in flight.
func (c *Controller) Scrolled(ctx context.Context, lastVisible int) bool {
	if c.source == nil || c.state != Idle || c.exhausted {
		return false
	}
	if lastVisible < c.list.Len()-c.threshold {
		return false
	}

	after, ok := c.list.LastNum()
	if !ok {
		return false
	}

	src := c.source
	c.request(ctx, false, func(ctx context.Context) ([]storage.Comic, error) {
		return src.Next(ctx, after)
	})
	return true
}

// Retry reissues the request that failed
func (c *Controller) Retry(ctx context.Context) bool {
	if c.state != Failed || c.retry == nil {
		return false
	}
	c.retry(ctx)
	return true
}

// Wait blocks until every issued request has posted its result to the loop.
// It must be called from outside the loop.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) request(ctx context.Context, first bool, fetch fetchFunc) {
	session := c.session
	c.state = Requested
	c.err = nil
	c.retry = func(ctx context.Context) { c.request(ctx, first, fetch) }

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		comics, err := fetch(ctx)
		if postErr := c.loop.Post(ctx, func() { c.deliver(session, first, comics, err) }); postErr != nil {
			c.log.WithError(postErr).Debug("Page result dropped")
		}
	}()
}

func (c *Controller) deliver(session uint64, first bool, comics []storage.Comic, err error) {
	if session != c.session {
		c.discarded++
		c.log.WithField("session", session).Debug("Discarding result from superseded session")
		return
	}

	if err != nil {
		c.state = Failed
		c.err = err
		c.log.WithError(err).Warn("Page request failed")
		if c.onError != nil {
			c.onError(err)
		}
		return
	}

	c.state = Idle
	if len(comics) == 0 {
		c.exhausted = true
	}

	switch {
	case first:
		c.list.UpdateList(comics)
	case len(comics) > 0:
		c.list.AddComics(comics)
	}
}
