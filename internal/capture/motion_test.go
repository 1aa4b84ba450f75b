package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestNewGate_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		config GateConfig
		want   GateConfig
	}{
		{
			name:   "zero config",
			config: GateConfig{},
			want:   DefaultGateConfig(),
		},
		{
			name:   "custom threshold keeps default rates",
			config: GateConfig{Threshold: 5},
			want:   GateConfig{Threshold: 5, IdleFPS: 5, ActiveFPS: 15, IdleTimeout: 2 * time.Second},
		},
		{
			name:   "negative values fall back",
			config: GateConfig{Threshold: -1, IdleFPS: -3, ActiveFPS: 30, IdleTimeout: -time.Second},
			want:   GateConfig{Threshold: 1, IdleFPS: 5, ActiveFPS: 30, IdleTimeout: 2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.config)
			defer g.Close()

			if g.config != tt.want {
				t.Errorf("config = %+v, want %+v", g.config, tt.want)
			}
			if g.Mode() != Idle {
				t.Errorf("new gate mode = %v, want idle", g.Mode())
			}
			if g.FPS() != tt.want.IdleFPS {
				t.Errorf("FPS() = %d, want %d", g.FPS(), tt.want.IdleFPS)
			}
		})
	}
}

func TestMode_String(t *testing.T) {
	if Idle.String() != "idle" || Active.String() != "active" {
		t.Errorf("unexpected mode names %q %q", Idle, Active)
	}
}

func blackWhite(t *testing.T) (*gocv.Mat, *gocv.Mat) {
	t.Helper()

	black := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() {
		black.Close()
		white.Close()
	})
	return &black, &white
}

func TestGate_StillSceneStaysIdle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewGate(DefaultGateConfig())
	defer g.Close()

	black, _ := blackWhite(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		mode, changed := g.Observe(black, now.Add(time.Duration(i)*time.Second))
		if mode != Idle || changed {
			t.Fatalf("frame %d: mode = %v changed = %v, want idle unchanged", i, mode, changed)
		}
	}
}

func TestGate_MotionActivatesThenTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewGate(GateConfig{IdleTimeout: time.Second})
	defer g.Close()

	black, white := blackWhite(t)
	start := time.Now()

	// First frame is only the baseline.
	if mode, _ := g.Observe(black, start); mode != Idle {
		t.Fatalf("baseline frame mode = %v, want idle", mode)
	}

	mode, changed := g.Observe(white, start.Add(100*time.Millisecond))
	if mode != Active || !changed {
		t.Fatalf("black to white: mode = %v changed = %v, want active changed", mode, changed)
	}
	if g.FPS() != 15 || g.Interval() != time.Second/15 {
		t.Errorf("active FPS = %d interval = %v", g.FPS(), g.Interval())
	}

	// Still, but within the timeout.
	mode, changed = g.Observe(white, start.Add(600*time.Millisecond))
	if mode != Active || changed {
		t.Errorf("within timeout: mode = %v changed = %v, want active unchanged", mode, changed)
	}

	mode, changed = g.Observe(white, start.Add(1200*time.Millisecond))
	if mode != Idle || !changed {
		t.Errorf("after timeout: mode = %v changed = %v, want idle changed", mode, changed)
	}
	if g.FPS() != 5 {
		t.Errorf("idle FPS = %d, want 5", g.FPS())
	}
}

func TestGate_HighThresholdIgnoresChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewGate(GateConfig{Threshold: 100})
	defer g.Close()

	black, white := blackWhite(t)
	now := time.Now()
	g.Observe(black, now)
	if mode, _ := g.Observe(white, now); mode != Idle {
		t.Errorf("mode = %v, want idle when threshold cannot be exceeded", mode)
	}
}

func TestGate_SizeChangeResetsBaseline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewGate(DefaultGateConfig())
	defer g.Close()

	black, _ := blackWhite(t)
	small := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer small.Close()

	now := time.Now()
	g.Observe(black, now)
	if mode, _ := g.Observe(&small, now); mode != Idle {
		t.Errorf("frame of a new size should become the baseline, got mode %v", mode)
	}
}

func TestGate_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	g := NewGate(DefaultGateConfig())
	defer g.Close()

	black, white := blackWhite(t)
	now := time.Now()
	g.Observe(black, now)
	g.Observe(white, now)

	g.Reset()
	if g.Mode() != Idle {
		t.Errorf("mode after Reset = %v, want idle", g.Mode())
	}
	if g.initialized || !g.prevGray.Empty() {
		t.Error("baseline should be cleared after Reset")
	}

	// The next frame is a fresh baseline, not motion.
	if mode, _ := g.Observe(black, now); mode != Idle {
		t.Errorf("first frame after Reset mode = %v, want idle", mode)
	}
}

func TestGate_EmptyFrame(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	defer g.Close()

	if mode, changed := g.Observe(nil, time.Now()); mode != Idle || changed {
		t.Errorf("nil frame: mode = %v changed = %v", mode, changed)
	}

	// Close twice must not panic.
	g.Close()
}
