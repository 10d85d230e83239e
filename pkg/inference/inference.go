// Package inference turns a camera frame into a human pose by asking a
// remote vision model for the 17 body keypoints.
//
// Example usage:
//
//	est, err := inference.NewGemini(ctx,
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    inference.WithModel("gemini-2.5-flash"),
//	)
//	if err != nil {
//	    // errors.Is(err, inference.ErrConfiguration) when credentials are missing
//	}
//	defer est.Close()
//
//	p, err := est.Estimate(ctx, jpegBytes)
package inference

import (
	"context"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Estimator maps one encoded image to a Pose.
//
// Implementations perform exactly one remote call per Estimate and never
// retry internally. Errors match ErrInvalidInput or ErrInference.
type Estimator interface {
	// Estimate returns the keypoints found in a JPEG or PNG image.
	Estimate(ctx context.Context, image []byte) (pose.Pose, error)

	// Close releases any resources held by the estimator.
	Close() error
}
