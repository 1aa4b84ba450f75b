package pose

import "gocv.io/x/gocv"

// Detector defines the interface for body landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns one LandmarkSet per detected subject,
	// in pixel coordinates of the frame. Returns an empty slice if nobody is detected.
	Detect(frame *gocv.Mat) ([]LandmarkSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// MinVisibility drops landmarks whose visibility score is below it.
	MinVisibility float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		MinVisibility:   0.5,
	}
}
