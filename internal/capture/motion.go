package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion analysis constants.
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the per-pixel intensity change that counts as changed
	DiffThreshold = 25
	// AnalysisWidth is the width frames are downscaled to before differencing
	AnalysisWidth = 320
)

// Mode is the capture rate a Gate asks for.
type Mode int

const (
	// Idle means the scene is still and frames only refresh the preview.
	Idle Mode = iota
	// Active means frames go to the pose detector.
	Active
)

func (m Mode) String() string {
	if m == Active {
		return "active"
	}
	return "idle"
}

// GateConfig tunes a Gate.
type GateConfig struct {
	// Threshold is the percentage of pixels that must change to count as motion.
	Threshold float64
	// IdleFPS and ActiveFPS are the capture rates for each mode.
	IdleFPS   int
	ActiveFPS int
	// IdleTimeout is how long the scene must stay still before dropping to Idle.
	IdleTimeout time.Duration
}

// DefaultGateConfig returns 1% change, 5/15 fps and a 2s idle timeout.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:   1.0,
		IdleFPS:     5,
		ActiveFPS:   15,
		IdleTimeout: 2 * time.Second,
	}
}

// Gate keeps the pose detector idle while the athlete is out of frame or
// hanging still. It differences consecutive frames and switches to Active on
// motion, back to Idle after IdleTimeout without motion.
type Gate struct {
	config      GateConfig
	prevGray    gocv.Mat
	initialized bool
	mode        Mode
	lastMotion  time.Time
	mu          sync.Mutex
}

// NewGate creates a Gate in Idle mode. Zero fields of config take their
// DefaultGateConfig value.
func NewGate(config GateConfig) *Gate {
	def := DefaultGateConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.IdleFPS <= 0 {
		config.IdleFPS = def.IdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = def.ActiveFPS
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	return &Gate{
		config:   config,
		prevGray: gocv.NewMat(),
	}
}

// Observe measures frame against the previous one and returns the resulting
// mode and whether it differs from the mode before the call.
func (g *Gate) Observe(frame *gocv.Mat, now time.Time) (mode Mode, changed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	before := g.mode
	if g.changePercent(frame) > g.config.Threshold {
		g.lastMotion = now
		g.mode = Active
	} else if g.mode == Active && now.Sub(g.lastMotion) > g.config.IdleTimeout {
		g.mode = Idle
	}
	return g.mode, g.mode != before
}

// Mode returns the current mode.
func (g *Gate) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// FPS returns the capture rate for the current mode.
func (g *Gate) FPS() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fps(g.mode)
}

// Interval returns the tick interval for the current mode.
func (g *Gate) Interval() time.Duration {
	return time.Second / time.Duration(g.FPS())
}

func (g *Gate) fps(m Mode) int {
	if m == Active {
		return g.config.ActiveFPS
	}
	return g.config.IdleFPS
}

// changePercent returns the share of pixels, in percent, that changed since
// the previous frame. Frames wider than AnalysisWidth are downscaled first.
// The first frame, or the first after a size change, becomes the baseline
// and reports 0.
func (g *Gate) changePercent(frame *gocv.Mat) float64 {
	if frame == nil || frame.Empty() {
		return 0
	}

	src := *frame
	if frame.Cols() > AnalysisWidth {
		small := gocv.NewMat()
		defer small.Close()
		scale := float64(AnalysisWidth) / float64(frame.Cols())
		gocv.Resize(*frame, &small, image.Point{}, scale, scale, gocv.InterpolationArea)
		src = small
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if src.Channels() > 1 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !g.initialized || g.prevGray.Rows() != blurred.Rows() || g.prevGray.Cols() != blurred.Cols() {
		blurred.CopyTo(&g.prevGray)
		g.initialized = true
		return 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	blurred.CopyTo(&g.prevGray)

	return float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
}

// Reset drops the baseline frame and returns to Idle.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// Close releases the baseline frame.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

func (g *Gate) reset() {
	if !g.prevGray.Empty() {
		g.prevGray.Close()
		g.prevGray = gocv.NewMat()
	}
	g.initialized = false
	g.mode = Idle
	g.lastMotion = time.Time{}
}
