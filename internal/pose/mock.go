package pose

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	subjects []LandmarkSet
	sequence [][]LandmarkSet
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetSubjects sets the subjects returned by every Detect call once any
// scripted sequence is exhausted.
func (m *MockDetector) SetSubjects(subjects []LandmarkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = subjects
}

// SetSequence scripts the results of consecutive Detect calls.
// A nil entry plays back as "nobody detected".
func (m *MockDetector) SetSequence(seq [][]LandmarkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next scripted result, the pre-configured subjects, or the error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]LandmarkSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.sequence) > 0 {
		next := m.sequence[0]
		m.sequence = m.sequence[1:]
		return next, nil
	}
	return m.subjects, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Synthetic pose geometry, in pixels of a 640x480 frame.
const (
	mockShoulderY   = 260.0
	mockShoulderGap = 40.0
	mockCenterX     = 320.0
	mockUpperArm    = 80.0
	mockForearm     = 70.0
)

// ArmsAtAngle returns a front-facing subject hanging from a bar whose elbows
// are both bent to the given angle in degrees (180 is a straight arm).
func ArmsAtAngle(deg float64) LandmarkSet {
	return ArmsAtAngles(deg, deg)
}

// ArmsAtAngles is ArmsAtAngle with independent left and right elbow angles.
func ArmsAtAngles(leftDeg, rightDeg float64) LandmarkSet {
	set := LandmarkSet{
		Nose:      {X: mockCenterX, Y: mockShoulderY - 60},
		LeftHip:   {X: mockCenterX - 30, Y: mockShoulderY + 140},
		RightHip:  {X: mockCenterX + 30, Y: mockShoulderY + 140},
		LeftKnee:  {X: mockCenterX - 30, Y: mockShoulderY + 200},
		RightKnee: {X: mockCenterX + 30, Y: mockShoulderY + 200},
	}
	placeArm(set, LeftShoulder, LeftElbow, LeftWrist, -1, leftDeg)
	placeArm(set, RightShoulder, RightElbow, RightWrist, 1, rightDeg)
	return set
}

// HangingLandmarks returns a subject in a dead hang (arms fully extended).
func HangingLandmarks() LandmarkSet {
	return ArmsAtAngle(175)
}

// ChinOverBarLandmarks returns a subject at the top of a pull-up (arms fully flexed).
func ChinOverBarLandmarks() LandmarkSet {
	return ArmsAtAngle(35)
}

// placeArm puts the shoulder beside the body, the elbow straight above it and
// the wrist rotated away from the upper arm by deg. side is -1 for left, 1 for right.
func placeArm(set LandmarkSet, shoulder, elbow, wrist Landmark, side, deg float64) {
	s := Point{X: mockCenterX + side*mockShoulderGap, Y: mockShoulderY}
	e := Point{X: s.X, Y: s.Y - mockUpperArm}

	// Direction elbow->shoulder is straight down (0,1); rotate it by deg outward.
	rad := deg * math.Pi / 180
	w := Point{
		X: e.X + side*math.Sin(rad)*mockForearm,
		Y: e.Y + math.Cos(rad)*mockForearm,
	}

	set[shoulder] = s
	set[elbow] = e
	set[wrist] = w
}
