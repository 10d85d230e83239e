// Package overlay renders a Pose on top of a mirrored video frame.
//
// Planning is pure: NewPlan decides what to draw in pixel space. Draw and
// Annotate paint a plan onto OpenCV images.
package overlay

import (
	"image"
	"math"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Threshold is the minimum score for a keypoint to be drawn.
const Threshold = 0.3

// Point is a keypoint in pixel coordinates of the mirrored frame.
type Point struct {
	Name string
	X, Y float64
}

// Pt rounds the point to integer pixels.
func (p Point) Pt() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Segment is one skeleton line.
type Segment struct {
	From, To Point
}

// Plan is everything to draw for one pose: segments first, then points.
type Plan struct {
	Segments []Segment
	Points   []Point
}

// Empty reports whether nothing would be drawn.
func (p Plan) Empty() bool {
	return len(p.Segments) == 0 && len(p.Points) == 0
}

// NewPlan maps a pose onto a width x height surface. x is mirrored as
// (1-x)*width to match the mirrored feed; y is y*height.
//
// Every keypoint scoring at least Threshold becomes a point, duplicates
// included. A segment is drawn for each body connection whose endpoints
// (first match by name) both clear Threshold.
func NewPlan(p pose.Pose, width, height int) Plan {
	var plan Plan
	if len(p) == 0 || width <= 0 || height <= 0 {
		return plan
	}

	w, h := float64(width), float64(height)
	project := func(kp pose.Keypoint) Point {
		return Point{Name: kp.Name, X: (1 - kp.X) * w, Y: kp.Y * h}
	}

	idx := p.Index()
	for _, c := range pose.BodyConnections {
		from, ok := idx[c.From]
		if !ok || from.Score < Threshold {
			continue
		}
		to, ok := idx[c.To]
		if !ok || to.Score < Threshold {
			continue
		}
		plan.Segments = append(plan.Segments, Segment{From: project(from), To: project(to)})
	}

	for _, kp := range p {
		if kp.Score >= Threshold {
			plan.Points = append(plan.Points, project(kp))
		}
	}
	return plan
}
