package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Supported image types.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// DetectImageType returns the MIME type of an encoded image, or an error
// matching ErrInvalidInput when the data is empty or not a JPEG/PNG.
func DetectImageType(image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	switch mime := http.DetectContentType(image); mime {
	case MimeJPEG, MimePNG:
		return mime, nil
	default:
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidInput, mime)
	}
}

type rawKeypoint struct {
	Name  *string  `json:"name"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Score *float64 `json:"score"`
}

// ParsePose decodes a model answer into a Pose.
//
// The answer must be a JSON array of {name, x, y, score} objects, or an
// object holding that array under "keypoints". Any structural problem
// fails the whole answer. Names outside the 17 keypoints are dropped and
// values are clamped into [0,1]. Duplicates are kept in answer order.
func ParsePose(text string) (pose.Pose, error) {
	body := []byte(stripFence(text))
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}

	var raw []rawKeypoint
	if trimmed := bytes.TrimSpace(body); trimmed[0] == '{' {
		var wrapped struct {
			Keypoints *[]rawKeypoint `json:"keypoints"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if wrapped.Keypoints == nil {
			return nil, fmt.Errorf("%w: object without keypoints array", ErrMalformedResponse)
		}
		raw = *wrapped.Keypoints
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make(pose.Pose, 0, len(raw))
	for i, r := range raw {
		if missing := r.missing(); missing != "" {
			return nil, fmt.Errorf("%w: keypoint %d missing %s", ErrMalformedResponse, i, missing)
		}
		name := strings.ToLower(strings.TrimSpace(*r.Name))
		if !pose.IsKnown(name) {
			continue
		}
		out = append(out, pose.Keypoint{
			Name:  name,
			X:     clamp01(*r.X),
			Y:     clamp01(*r.Y),
			Score: clamp01(*r.Score),
		})
	}
	return out, nil
}

func (r rawKeypoint) missing() string {
	switch {
	case r.Name == nil:
		return "name"
	case r.X == nil:
		return "x"
	case r.Y == nil:
		return "y"
	case r.Score == nil:
		return "score"
	}
	return ""
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
