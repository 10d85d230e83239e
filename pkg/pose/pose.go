// Package pose defines the keypoint data model shared by the inference
// client, the capture loop and the overlay renderer.
package pose

// Keypoint is one named body landmark. X and Y are normalized to [0,1]
// with the origin at the top-left of the frame.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Pose is the set of keypoints detected in one frame. It is not guaranteed
// to be complete, ordered or free of duplicates; look points up by name.
type Pose []Keypoint

// Find returns the first keypoint with the given name.
func (p Pose) Find(name string) (Keypoint, bool) {
	for _, kp := range p {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// Index returns the first keypoint per name.
func (p Pose) Index() map[string]Keypoint {
	m := make(map[string]Keypoint, len(p))
	for _, kp := range p {
		if _, ok := m[kp.Name]; !ok {
			m[kp.Name] = kp
		}
	}
	return m
}

// Clone returns a copy that shares no memory with p.
func (p Pose) Clone() Pose {
	if p == nil {
		return nil
	}
	out := make(Pose, len(p))
	copy(out, p)
	return out
}

// Keypoint names.
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// Names lists the 17 keypoints in canonical order.
var Names = []string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(Names))
	for _, n := range Names {
		m[n] = true
	}
	return m
}()

// IsKnown reports whether name is one of the 17 keypoint names.
func IsKnown(name string) bool {
	return known[name]
}
