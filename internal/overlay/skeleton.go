// Package overlay builds and draws the skeleton shown over the camera preview.
package overlay

import "github.com/ayusman/reptrack/internal/pose"

// bones lists the landmark pairs joined by a line, one pair per entry.
var bones = [][2]pose.Landmark{
	{pose.LeftShoulder, pose.RightShoulder},
	{pose.LeftShoulder, pose.LeftElbow},
	{pose.LeftElbow, pose.LeftWrist},
	{pose.RightShoulder, pose.RightElbow},
	{pose.RightElbow, pose.RightWrist},
	{pose.LeftShoulder, pose.LeftHip},
	{pose.RightShoulder, pose.RightHip},
	{pose.LeftHip, pose.RightHip},
	{pose.LeftHip, pose.LeftKnee},
	{pose.LeftKnee, pose.LeftAnkle},
	{pose.RightHip, pose.RightKnee},
	{pose.RightKnee, pose.RightAnkle},
}

// Point is a position normalized to [0,1] of the frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one bone line.
type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Joint is one landmark dot.
type Joint struct {
	Name string `json:"name"`
	At   Point  `json:"at"`
}

// Skeleton is the display geometry for one subject. The zero value is an
// empty overlay, used to clear the display when nobody is detected.
type Skeleton struct {
	Segments []Segment `json:"segments"`
	Joints   []Joint   `json:"joints"`
}

// Empty reports whether there is nothing to draw.
func (s Skeleton) Empty() bool {
	return len(s.Segments) == 0 && len(s.Joints) == 0
}

// Build converts a pixel-space LandmarkSet into display space by dividing by
// the frame dimensions. Bones with a missing end are skipped.
func Build(set pose.LandmarkSet, width, height int) Skeleton {
	if len(set) == 0 || width <= 0 || height <= 0 {
		return Skeleton{}
	}

	norm := func(p pose.Point) Point {
		return Point{X: p.X / float64(width), Y: p.Y / float64(height)}
	}

	var sk Skeleton
	for _, b := range bones {
		from, ok := set.Get(b[0])
		if !ok {
			continue
		}
		to, ok := set.Get(b[1])
		if !ok {
			continue
		}
		sk.Segments = append(sk.Segments, Segment{From: norm(from), To: norm(to)})
	}

	for i := 0; i < pose.NumLandmarks; i++ {
		l := pose.Landmark(i)
		p, ok := set.Get(l)
		if !ok {
			continue
		}
		sk.Joints = append(sk.Joints, Joint{Name: l.String(), At: norm(p)})
	}

	return sk
}
