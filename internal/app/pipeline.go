package app

import (
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/metrics"
	"github.com/ayusman/reptrack/internal/overlay"
	"github.com/ayusman/reptrack/internal/pose"
)

// Start opens the camera and begins the capture loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.gate.FPS())

	a.stopCh = make(chan struct{})
	a.loopWg.Add(1)
	go a.runPipeline(a.stopCh)

	a.logger.Info("capture pipeline started")
	return nil
}

// Stop halts the capture loop and closes the camera. Queued detection
// results are still applied.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh := a.stopCh
	a.stopCh = nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	a.loopWg.Wait()

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("error closing camera", zap.Error(err))
	}
	a.gate.Reset()

	a.logger.Info("capture pipeline stopped")
}

// IsRunning reports whether the capture loop is active.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// runPipeline is the single producer. Each tick it reads a frame, gates the
// detector on motion, detects, annotates the preview and submits the result.
//
// Frames skipped by motion gating are not submitted: a still athlete keeps
// the current phase.
func (a *App) runPipeline(stopCh <-chan struct{}) {
	defer a.loopWg.Done()

	ticker := time.NewTicker(a.gate.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				a.logger.Debug("error reading frame", zap.Error(err))
				continue
			}

			mode, changed := a.gate.Observe(frame, time.Now())
			if changed {
				a.camera.SetFPS(a.gate.FPS())
				ticker.Reset(a.gate.Interval())
				a.logger.Debug("capture mode changed", zap.Stringer("mode", mode))
			}

			if mode == capture.Idle {
				a.annotate(frame, a.LastEvent().Overlay)
				frame.Close()
				continue
			}

			a.processFrame(frame)
			frame.Close()
		}
	}
}

// processFrame detects on frame, draws the result onto it and submits it.
func (a *App) processFrame(frame *gocv.Mat) {
	start := time.Now()
	subjects, err := a.detector.Detect(frame)
	metrics.DetectDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn("pose detection failed", zap.Error(err))
		return
	}

	d := pose.Detection{
		Subjects:  subjects,
		Width:     frame.Cols(),
		Height:    frame.Rows(),
		Timestamp: start,
	}

	var sk overlay.Skeleton
	if set, ok := d.Primary(); ok {
		sk = overlay.Build(set, d.Width, d.Height)
	}
	a.annotate(frame, sk)

	if !a.Submit(d) {
		a.logger.Debug("detection queue full, frame dropped")
	}
}

// annotate draws sk and the current count onto frame and stores it as the
// latest preview JPEG.
func (a *App) annotate(frame *gocv.Mat, sk overlay.Skeleton) {
	overlay.Draw(frame, sk, a.counter.State())

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		a.logger.Debug("failed to encode preview", zap.Error(err))
		return
	}
	defer buf.Close()

	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())

	a.previewMu.Lock()
	a.preview = jpeg
	a.previewMu.Unlock()
}

// Preview returns the latest annotated frame as JPEG, or nil before the
// first frame.
func (a *App) Preview() []byte {
	a.previewMu.RLock()
	defer a.previewMu.RUnlock()
	return a.preview
}
