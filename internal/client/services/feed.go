package services

import (
	"context"
	"errors"
	"sync"

	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/client/remote"
)

// Feed is a live view of the entry set: every remote change arrives as a full
// snapshot already merged with local pending state. The channel closes when
// the feed ends; Err then reports why, nil when the stream dropped for a
// transient reason or was closed on purpose.
type Feed struct {
	ch  chan []models.Entry
	sub remote.Subscription

	mu  sync.Mutex
	err error
}

func (f *Feed) C() <-chan []models.Entry { return f.ch }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Feed) Close() error { return f.sub.Close() }

func (f *Feed) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (s *syncService) Watch(ctx context.Context) (*Feed, error) {
	sub, err := s.client.Watch(ctx, s.owner)
	if err != nil {
		return nil, err
	}
	f := &Feed{ch: make(chan []models.Entry, 1), sub: sub}
	go s.feedLoop(ctx, f, sub)
	return f, nil
}

func (s *syncService) feedLoop(ctx context.Context, f *Feed, sub remote.Subscription) {
	defer close(f.ch)

	for snapshot := range sub.C() {
		merged, err := s.mergeSnapshot(ctx, snapshot)
		if err != nil {
			s.log.Error(ctx, "failed to apply remote snapshot", "error", err)
			continue
		}
		select {
		case f.ch <- merged:
		case <-ctx.Done():
			return
		}
	}

	werr := sub.Err()
	if werr == nil {
		return
	}
	if errors.Is(werr, remote.ErrUnavailable) {
		// connection loss degrades to the last known local state
		s.log.Warn(ctx, "watch stream dropped, falling back to local view", "error", werr)
		local, lerr := s.List(ctx)
		if lerr == nil {
			select {
			case f.ch <- local:
			default:
			}
		}
		return
	}
	f.setErr(werr)
}
