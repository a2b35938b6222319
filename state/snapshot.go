package state

import (
	"context"
	"fmt"

	"github.com/warp/kpsmart/eventlog"
)

// =============================================================================
// VIEW - Read-only state as of an earlier event
// =============================================================================

// View is the state after a fixed prefix of the log. It is built once by
// replay, owns its data, and never changes.
type View struct {
	*projection
}

// AtEvent rebuilds the state as of eventID by replaying events 1..eventID
// into an empty projection. The live state is neither locked nor touched,
// so mutations proceed while the replay runs. AtEvent(0) is the empty
// state.
func (s *State) AtEvent(ctx context.Context, eventID uint64) (*View, error) {
	if n := s.log.NumberOfEvents(); eventID > n {
		return nil, fmt.Errorf("%w: event %d, log has %d", eventlog.ErrEventOutOfRange, eventID, n)
	}

	p, err := replay(ctx, s.log, eventID)
	if err != nil {
		s.logger.Error("time travel replay failed", "event_id", eventID, "error", err)
		return nil, err
	}
	return &View{projection: p}, nil
}

// replay folds events 1..upTo of r into a fresh projection.
func replay(ctx context.Context, r eventlog.Reader, upTo uint64) (*projection, error) {
	p := newProjection()
	for evt, err := range r.EntriesUpTo(ctx, upTo) {
		if err != nil {
			return nil, &ReplayError{EventID: p.eventID + 1, Err: err}
		}
		if err := p.apply(evt); err != nil {
			return nil, &ReplayError{EventID: evt.ID, Err: err}
		}
	}
	if p.eventID != upTo {
		return nil, &ReplayError{
			EventID: p.eventID + 1,
			Err:     fmt.Errorf("log ends at event %d, wanted %d", p.eventID, upTo),
		}
	}
	return p, nil
}
