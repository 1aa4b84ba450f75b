package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/reptrack/internal/rep"
)

var (
	boneColor   = color.RGBA{R: 0, G: 220, B: 255, A: 0}
	jointColor  = color.RGBA{R: 255, G: 80, B: 0, A: 0}
	flexedColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

const (
	lineThickness = 2
	jointRadius   = 4
)

// Draw renders the skeleton and the rep state onto img, scaling the
// normalized skeleton to the image size.
func Draw(img *gocv.Mat, sk Skeleton, state rep.State) {
	if img == nil || img.Empty() {
		return
	}

	w, h := float64(img.Cols()), float64(img.Rows())
	px := func(p Point) image.Point {
		return image.Pt(int(p.X*w), int(p.Y*h))
	}

	lineColor := boneColor
	if state.Phase == rep.Flexed {
		lineColor = flexedColor
	}

	for _, s := range sk.Segments {
		gocv.Line(img, px(s.From), px(s.To), lineColor, lineThickness)
	}
	for _, j := range sk.Joints {
		gocv.Circle(img, px(j.At), jointRadius, jointColor, -1)
	}

	label := fmt.Sprintf("Reps: %d", state.Count)
	gocv.PutText(img, label, image.Pt(16, 40), gocv.FontHersheySimplex, 1.2, textColor, 2)
}
