// Package geometry derives joint angles from pose landmarks.
package geometry

import (
	"math"

	"github.com/ayusman/reptrack/internal/pose"
)

// Joint names the three landmarks forming an angle; Vertex is the joint itself.
type Joint struct {
	A      pose.Landmark
	Vertex pose.Landmark
	C      pose.Landmark
}

// Limb pairs the same joint on both sides of the body.
type Limb struct {
	Left  Joint
	Right Joint
}

// Elbow is the shoulder-elbow-wrist joint on both arms.
var Elbow = Limb{
	Left:  Joint{A: pose.LeftShoulder, Vertex: pose.LeftElbow, C: pose.LeftWrist},
	Right: Joint{A: pose.RightShoulder, Vertex: pose.RightElbow, C: pose.RightWrist},
}

// JointAngle returns the interior angle at p2 formed by p1-p2-p3, in degrees.
// Coincident points make the angle undefined; that case yields 0.
func JointAngle(p1, p2, p3 pose.Point) float64 {
	v1x, v1y := p1.X-p2.X, p1.Y-p2.Y
	v2x, v2y := p3.X-p2.X, p3.Y-p2.Y

	mag1 := math.Hypot(v1x, v1y)
	mag2 := math.Hypot(v2x, v2y)
	if mag1 == 0 || mag2 == 0 {
		return 0
	}

	cos := (v1x*v2x + v1y*v2y) / (mag1 * mag2)
	// Rounding can push |cos| slightly past 1 for collinear points.
	cos = math.Max(-1, math.Min(1, cos))

	return math.Acos(cos) * 180 / math.Pi
}

// SideAngle computes the angle of a single joint. It reports false if any
// of the three landmarks is missing.
func SideAngle(set pose.LandmarkSet, j Joint) (float64, bool) {
	a, ok := set.Get(j.A)
	if !ok {
		return 0, false
	}
	v, ok := set.Get(j.Vertex)
	if !ok {
		return 0, false
	}
	c, ok := set.Get(j.C)
	if !ok {
		return 0, false
	}
	return JointAngle(a, v, c), true
}

// LimbAngle combines both sides of a limb: the mean when both are measurable,
// the single side when only one is, and false when neither is.
func LimbAngle(set pose.LandmarkSet, limb Limb) (float64, bool) {
	left, leftOK := SideAngle(set, limb.Left)
	right, rightOK := SideAngle(set, limb.Right)

	switch {
	case leftOK && rightOK:
		return (left + right) / 2, true
	case leftOK:
		return left, true
	case rightOK:
		return right, true
	default:
		return 0, false
	}
}

// ElbowAngle is the elbow flexion angle used for rep counting.
func ElbowAngle(set pose.LandmarkSet) (float64, bool) {
	return LimbAngle(set, Elbow)
}
