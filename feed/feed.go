// Package feed publishes full snapshots of the live match collection to
// subscribers whenever the store reports a change.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/padel-system/models"
)

// Source - откуда берётся текущий набор живых матчей.
type Source interface {
	List(ctx context.Context) ([]*models.Match, error)
}

type Snapshot struct {
	Matches []*models.Match `json:"matches"`
	At      time.Time       `json:"at"`
}

// Feed рассылает снимки подписчикам. Медленный подписчик не блокирует
// остальных: в его канале остаётся только последний снимок.
type Feed struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
	last   *Snapshot
}

func New(source Source, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		source: source,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan Snapshot),
	}
}

// Subscribe returns a channel of snapshots and a function that ends the
// subscription. The last published snapshot, if any, is delivered at once.
func (f *Feed) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	if f.last != nil {
		ch <- *f.last
	}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			close(ch)
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

func (f *Feed) Publish(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &snap
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			// Вытесняем устаревший снимок.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Refresh reads the source and publishes the result.
func (f *Feed) Refresh(ctx context.Context) error {
	matches, err := f.source.List(ctx)
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	f.Publish(Snapshot{Matches: matches, At: f.now().UTC()})
	return nil
}

// Watch refreshes once, then again on every signal, until ctx is cancelled
// or signals is closed.
func (f *Feed) Watch(ctx context.Context, signals <-chan struct{}) {
	if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
		f.logger.ErrorContext(ctx, "Initial feed refresh failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
				f.logger.ErrorContext(ctx, "Feed refresh failed", slog.Any("error", err))
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
