package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Style controls how a plan is painted.
type Style struct {
	PointRadius int
	LineWidth   int
	PointColor  color.RGBA
	LineColor   color.RGBA
}

// DefaultStyle draws 5px cyan joints joined by 4px teal lines.
func DefaultStyle() Style {
	return Style{
		PointRadius: 5,
		LineWidth:   4,
		PointColor:  color.RGBA{R: 0x06, G: 0xb6, B: 0xd4, A: 0xff},
		LineColor:   color.RGBA{R: 0x2d, G: 0xd4, B: 0xbf, A: 0xff},
	}
}

// ErrDecode is returned when a frame cannot be decoded.
var ErrDecode = errors.New("overlay: cannot decode frame")

// Draw paints plan onto img.
func Draw(img *gocv.Mat, plan Plan, style Style) {
	for _, s := range plan.Segments {
		gocv.Line(img, s.From.Pt(), s.To.Pt(), style.LineColor, style.LineWidth)
	}
	for _, p := range plan.Points {
		gocv.Circle(img, p.Pt(), style.PointRadius, style.PointColor, -1)
	}
}

// DrawPose plans and paints p onto img, which must already be mirrored.
func DrawPose(img *gocv.Mat, p pose.Pose, style Style) {
	Draw(img, NewPlan(p, img.Cols(), img.Rows()), style)
}

// Options tune Annotate.
type Options struct {
	Style      Style
	Quality    int  // output JPEG quality, 0 for 80
	Processing bool // show the busy marker
}

// Annotate decodes an encoded frame, mirrors it, paints p and returns a JPEG.
// A nil pose yields the mirrored frame alone.
func Annotate(frame []byte, p pose.Pose, opts Options) ([]byte, error) {
	src, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil || src.Empty() {
		src.Close()
		return nil, ErrDecode
	}
	defer src.Close()

	mirrored := gocv.NewMat()
	defer mirrored.Close()
	gocv.Flip(src, &mirrored, 1)

	if opts.Style == (Style{}) {
		opts.Style = DefaultStyle()
	}
	DrawPose(&mirrored, p, opts.Style)
	if opts.Processing {
		drawBusy(&mirrored, opts.Style)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = 80
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mirrored, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("overlay: encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// drawBusy marks the top-right corner while an estimate is in flight.
func drawBusy(img *gocv.Mat, style Style) {
	r := style.PointRadius * 2
	center := image.Pt(img.Cols()-r*2, r*2)
	gocv.Circle(img, center, r, style.LineColor, 2)
	gocv.PutText(img, "analyzing", image.Pt(center.X-r*2-90, center.Y+r/2),
		gocv.FontHersheySimplex, 0.6, style.PointColor, 2)
}
