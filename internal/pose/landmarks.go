// Package pose provides body landmark detection interfaces and types for rep counting.
package pose

import "time"

// Landmark identifies a body joint. Values follow the MediaPipe Pose convention
// so detector output can be mapped by index.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
type Landmark int

const (
	Nose          Landmark = 0
	LeftShoulder  Landmark = 11
	RightShoulder Landmark = 12
	LeftElbow     Landmark = 13
	RightElbow    Landmark = 14
	LeftWrist     Landmark = 15
	RightWrist    Landmark = 16
	LeftHip       Landmark = 23
	RightHip      Landmark = 24
	LeftKnee      Landmark = 25
	RightKnee     Landmark = 26
	LeftAnkle     Landmark = 27
	RightAnkle    Landmark = 28

	// NumLandmarks is the number of landmarks a MediaPipe pose carries.
	NumLandmarks = 33
)

var landmarkNames = map[Landmark]string{
	Nose:          "nose",
	LeftShoulder:  "left_shoulder",
	RightShoulder: "right_shoulder",
	LeftElbow:     "left_elbow",
	RightElbow:    "right_elbow",
	LeftWrist:     "left_wrist",
	RightWrist:    "right_wrist",
	LeftHip:       "left_hip",
	RightHip:      "right_hip",
	LeftKnee:      "left_knee",
	RightKnee:     "right_knee",
	LeftAnkle:     "left_ankle",
	RightAnkle:    "right_ankle",
}

// Known reports whether l is one of the tracked landmarks.
func (l Landmark) Known() bool {
	_, ok := landmarkNames[l]
	return ok
}

func (l Landmark) String() string {
	if name, ok := landmarkNames[l]; ok {
		return name
	}
	return "unknown"
}

// Point is a 2D position in frame-pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LandmarkSet holds the landmarks detected for one subject in one frame.
// Occluded or low-confidence landmarks are absent rather than zero-valued.
type LandmarkSet map[Landmark]Point

// Get returns the position of l and whether it was detected.
func (s LandmarkSet) Get(l Landmark) (Point, bool) {
	if s == nil {
		return Point{}, false
	}
	p, ok := s[l]
	return p, ok
}

// Has reports whether every given landmark is present.
func (s LandmarkSet) Has(ls ...Landmark) bool {
	for _, l := range ls {
		if _, ok := s.Get(l); !ok {
			return false
		}
	}
	return true
}

// Detection is the extractor output for a single frame.
type Detection struct {
	Subjects  []LandmarkSet
	Width     int
	Height    int
	Timestamp time.Time
}

// Primary returns the first detected subject. Only that subject is counted;
// there is no identity tracking across frames.
func (d Detection) Primary() (LandmarkSet, bool) {
	if len(d.Subjects) == 0 || len(d.Subjects[0]) == 0 {
		return nil, false
	}
	return d.Subjects[0], true
}
