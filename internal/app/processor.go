package app

import (
	"time"

	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/metrics"
	"github.com/ayusman/reptrack/internal/overlay"
	"github.com/ayusman/reptrack/internal/pose"
	"github.com/ayusman/reptrack/internal/rep"
)

// Event is what the display side sees after one detection result or a reset.
type Event struct {
	Update    rep.Update       `json:"update"`
	Overlay   overlay.Skeleton `json:"overlay"`
	Absent    bool             `json:"absent"`
	Timestamp time.Time        `json:"timestamp"`
}

// Processor turns detection results into counter updates. It holds no state
// of its own; the counter is the only cross-frame memory.
type Processor struct {
	counter *rep.Counter
}

// NewProcessor creates a Processor feeding counter.
func NewProcessor(counter *rep.Counter) *Processor {
	return &Processor{counter: counter}
}

// Process applies one frame's detection result. Only the first subject is
// used. A frame without a subject leaves the count and phase untouched and
// clears the overlay.
func (p *Processor) Process(d pose.Detection) Event {
	metrics.FramesProcessedTotal.Inc()

	set, ok := d.Primary()
	if !ok {
		metrics.DetectionsAbsentTotal.WithLabelValues(metrics.ReasonNoSubject).Inc()
		return Event{
			Update:    p.counter.Observe(0, false),
			Absent:    true,
			Timestamp: d.Timestamp,
		}
	}

	angle, ok := geometry.ElbowAngle(set)
	if ok {
		metrics.ElbowAngle.Observe(angle)
	} else {
		metrics.DetectionsAbsentTotal.WithLabelValues(metrics.ReasonNoAngle).Inc()
	}

	u := p.counter.Observe(angle, ok)
	if u.Completed {
		metrics.RepsTotal.Inc()
	}
	metrics.RepCount.Set(float64(u.State.Count))

	return Event{
		Update:    u,
		Overlay:   overlay.Build(set, d.Width, d.Height),
		Timestamp: d.Timestamp,
	}
}

// Counter returns the counter this processor feeds.
func (p *Processor) Counter() *rep.Counter {
	return p.counter
}
