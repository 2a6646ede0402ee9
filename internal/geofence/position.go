package geofence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oversight/internal/domain"
)

// DefaultTimeout bounds a single position acquisition.
const DefaultTimeout = 10 * time.Second

var (
	// ErrPositionUnavailable means no fix was obtained in time. Callers fail closed.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrOutsideGeofence means the fix was obtained but is too far from the object.
	ErrOutsideGeofence = errors.New("outside geofence")
)

// Position is a single high-accuracy fix.
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Location converts the fix into the form stored on a violation.
func (p Position) Location() domain.Location {
	return domain.Location{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Accuracy:  p.Accuracy,
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
	}
}

// PositionSource yields the caller's current position.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// PositionFunc adapts a function to PositionSource.
type PositionFunc func(ctx context.Context) (Position, error)

func (f PositionFunc) CurrentPosition(ctx context.Context) (Position, error) { return f(ctx) }

// Fixed returns a source that always reports p.
func Fixed(p Position) PositionSource {
	return PositionFunc(func(context.Context) (Position, error) { return p, nil })
}

// Acquire requests one fix from src, giving up after timeout. Any failure,
// including a source that ignores cancellation, yields ErrPositionUnavailable.
func Acquire(ctx context.Context, src PositionSource, timeout time.Duration) (Position, error) {
	if src == nil {
		return Position{}, ErrPositionUnavailable
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := src.CurrentPosition(ctx)
		ch <- result{pos, err}
	}()

	select {
	case <-ctx.Done():
		return Position{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Position{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, r.err)
		}
		return r.pos, nil
	}
}

// Gate acquires a position and checks it against polygon. The returned
// position is valid whenever err is nil or wraps ErrOutsideGeofence.
func (g Guard) Gate(ctx context.Context, src PositionSource, timeout time.Duration, polygon []domain.Point) (Position, error) {
	pos, err := Acquire(ctx, src, timeout)
	if err != nil {
		return Position{}, err
	}
	if !g.Check(pos, polygon) {
		return pos, ErrOutsideGeofence
	}
	return pos, nil
}
