// Package source provides RawEventSource implementations: the boundary through
// which raw clickstream records enter the pipeline. Sources only deliver text
// records; validation and typing happen in the etl package.
package source

import (
	"context"
	"errors"
	"io"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// RawEventSource yields raw event records one at a time. Next returns io.EOF
// once the source is exhausted; any other error aborts the run.
type RawEventSource interface {
	Next() (domain.RawEvent, error)
}

// ReadAll drains src into memory. The context is checked between records so a
// caller can abandon an oversized input.
func ReadAll(ctx context.Context, src RawEventSource) ([]domain.RawEvent, error) {
	var out []domain.RawEvent
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
}

// SliceSource serves records from an in-memory slice.
type SliceSource struct {
	events []domain.RawEvent
	pos    int
}

// NewSliceSource returns a source over events. The slice is not copied.
func NewSliceSource(events []domain.RawEvent) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next record or io.EOF.
func (s *SliceSource) Next() (domain.RawEvent, error) {
	if s.pos >= len(s.events) {
		return domain.RawEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}
