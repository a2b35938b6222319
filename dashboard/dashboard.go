// Package dashboard selects the state a dashboard reports on: the live
// state, or the state as of an earlier event for time travel.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/kpsmart/report"
	"github.com/warp/kpsmart/state"
)

// Board is everything one dashboard render needs.
type Board struct {
	*report.Engine

	// AtEvent is the event the board reports as of. 0 means live.
	AtEvent uint64
	// EventCount is the length of the live log, for the time slider.
	EventCount uint64
}

// HasCriticalRoutes reports whether any route group costs more than it earns.
func (b *Board) HasCriticalRoutes() bool {
	return len(b.CriticalRoutes()) > 0
}

type Dashboard struct {
	state  *state.State
	logger *slog.Logger
}

func New(s *state.State, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dashboard{state: s, logger: logger}
}

// At builds the board as of eventID, or over the live state for 0.
func (d *Dashboard) At(ctx context.Context, eventID uint64) (*Board, error) {
	count := d.state.NumberOfEvents()
	if eventID == 0 {
		return &Board{Engine: report.New(d.state), EventCount: count}, nil
	}

	view, err := d.state.AtEvent(ctx, eventID)
	if err != nil {
		d.logger.Warn("dashboard time travel failed", "event_id", eventID, "event_count", count, "error", err)
		return nil, fmt.Errorf("dashboard at event %d: %w", eventID, err)
	}
	d.logger.Debug("dashboard time travel", "event_id", eventID, "event_count", count)
	return &Board{Engine: report.New(view), AtEvent: eventID, EventCount: count}, nil
}
