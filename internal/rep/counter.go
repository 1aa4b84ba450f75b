// Package rep implements the pull-up repetition counter.
//
// A rep is counted with a two-threshold hysteresis: the elbow angle must first
// drop below UpThreshold (arms flexed, chin over the bar) and then rise above
// DownThreshold (arms extended) before the count advances. Jitter inside the
// band between the thresholds never changes the state.
package rep

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidThresholds is returned when a Config does not describe a hysteresis band.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Phase is the counter's position within a repetition.
type Phase int

const (
	// Resting means the arms are extended or the rep has not been confirmed flexed yet.
	Resting Phase = iota
	// Flexed means the arms went below the up threshold and the rep awaits extension.
	Flexed
)

func (p Phase) String() string {
	switch p {
	case Resting:
		return "resting"
	case Flexed:
		return "flexed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase by name for JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Config holds the counter thresholds in degrees.
type Config struct {
	// UpThreshold is the angle below which the arm counts as fully flexed.
	UpThreshold float64 `json:"up_threshold"`
	// DownThreshold is the angle above which the arm counts as fully extended.
	DownThreshold float64 `json:"down_threshold"`
}

// DefaultConfig returns the standard pull-up thresholds.
func DefaultConfig() Config {
	return Config{
		UpThreshold:   50,
		DownThreshold: 160,
	}
}

// Validate checks that the thresholds form a band inside [0,180].
func (c Config) Validate() error {
	if math.IsNaN(c.UpThreshold) || math.IsNaN(c.DownThreshold) {
		return fmt.Errorf("%w: thresholds must be numbers", ErrInvalidThresholds)
	}
	if c.UpThreshold < 0 || c.DownThreshold > 180 {
		return fmt.Errorf("%w: thresholds must lie within [0,180]", ErrInvalidThresholds)
	}
	if c.UpThreshold >= c.DownThreshold {
		return fmt.Errorf("%w: up threshold %.1f must be below down threshold %.1f",
			ErrInvalidThresholds, c.UpThreshold, c.DownThreshold)
	}
	return nil
}

// State is the counter's cross-frame memory.
type State struct {
	Count int   `json:"count"`
	Phase Phase `json:"phase"`
}

// Step applies one angle measurement to s and reports whether a rep completed.
func Step(s State, angle float64, cfg Config) (State, bool) {
	switch {
	case s.Phase == Resting && angle < cfg.UpThreshold:
		s.Phase = Flexed
		return s, false
	case s.Phase == Flexed && angle > cfg.DownThreshold:
		s.Phase = Resting
		s.Count++
		return s, true
	default:
		return s, false
	}
}

// Update describes the outcome of one mutation, delivered to listeners.
type Update struct {
	State     State   `json:"state"`
	Angle     float64 `json:"angle"`
	HasAngle  bool    `json:"has_angle"`
	Completed bool    `json:"completed"`
	Reset     bool    `json:"reset"`

	// Seq numbers the mutation that produced this update. An update for an
	// absent angle carries the Seq of the last mutation.
	Seq uint64 `json:"seq"`
}

// Counter owns a State and serializes every mutation of it.
type Counter struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	seq       uint64
	listeners []func(Update)
}

// NewCounter creates a Counter in the Resting phase with a zero count.
func NewCounter(cfg Config) (*Counter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Counter{cfg: cfg}, nil
}

// OnUpdate registers fn to receive every Update after it has been applied.
// Listeners run on the mutating goroutine and must not block.
func (c *Counter) OnUpdate(fn func(Update)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Observe feeds one frame's measurement. When ok is false the frame had no
// usable angle and the state is left untouched.
func (c *Counter) Observe(angle float64, ok bool) Update {
	c.mu.Lock()
	if !ok {
		u := Update{State: c.state, Seq: c.seq}
		c.mu.Unlock()
		return u
	}

	next, completed := Step(c.state, angle, c.cfg)
	c.state = next
	c.seq++
	u := Update{
		State:     next,
		Angle:     angle,
		HasAngle:  true,
		Completed: completed,
		Seq:       c.seq,
	}
	listeners := c.listeners
	c.mu.Unlock()

	notify(listeners, u)
	return u
}

// Reset returns the counter to a zero count in the Resting phase.
func (c *Counter) Reset() Update {
	c.mu.Lock()
	c.state = State{}
	c.seq++
	u := Update{State: c.state, Reset: true, Seq: c.seq}
	listeners := c.listeners
	c.mu.Unlock()

	notify(listeners, u)
	return u
}

// State returns a snapshot of the current state.
func (c *Counter) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the active thresholds.
func (c *Counter) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig swaps the thresholds. The current count and phase are kept.
func (c *Counter) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return nil
}

func notify(listeners []func(Update), u Update) {
	for _, fn := range listeners {
		fn(u)
	}
}
