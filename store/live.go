package store

import (
	"context"
	"log"

	"tripmate-server/utils/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// Subscription is the handle returned by a live query. Callers own it and
// must call Unsubscribe when no longer interested; that is the only
// cancellation mechanism.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	errs   chan error
}

// Errs reports transient read failures on the subscription. The delivery
// loop keeps running after an error; callers log and may resubscribe.
func (s *Subscription) Errs() <-chan error {
	return s.errs
}

// Unsubscribe cancels the subscription and waits for its delivery loop to
// exit. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

// WatchQuery implements the subscribe-to-query primitive: snapshot runs once
// immediately, then again on every change-stream event for coll. Each run
// re-delivers full state, never a diff, so results are always a pure
// function of the current collection contents.
//
// Change streams require MongoDB to run as a replica set.
func WatchQuery(ctx context.Context, coll *mongo.Collection, snapshot func(ctx context.Context) error) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	cs, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
		errs:   make(chan error, 1),
	}

	if err := snapshot(ctx); err != nil {
		cs.Close(ctx)
		cancel()
		close(sub.done)
		return nil, err
	}

	go func() {
		defer close(sub.done)
		defer cs.Close(context.Background())

		for cs.Next(ctx) {
			if err := snapshot(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				sub.reportErr(err)
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			log.Printf("Change stream on %s ended: %v", coll.Name(), err)
			sub.reportErr(errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status))
		}
	}()

	return sub, nil
}

func (s *Subscription) reportErr(err error) {
	select {
	case s.errs <- err:
	default:
		// Slow consumer; drop rather than block the delivery loop.
	}
}
