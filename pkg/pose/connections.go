package pose

// Connection is one skeleton edge between two keypoints.
type Connection struct {
	From string
	To   string
}

// BodyConnections is the skeleton drawn between keypoints.
// Order is fixed so rendering is deterministic.
var BodyConnections = []Connection{
	{Nose, LeftEye},
	{Nose, RightEye},
	{LeftEye, LeftEar},
	{RightEye, RightEar},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightElbow},
	{RightShoulder, RightHip},
	{LeftElbow, LeftWrist},
	{RightElbow, RightWrist},
	{LeftHip, RightHip},
	{LeftHip, LeftKnee},
	{RightHip, RightKnee},
	{LeftKnee, LeftAnkle},
	{RightKnee, RightAnkle},
}

// ConnectionsFrom returns the keypoints connected from name, in table order.
func ConnectionsFrom(name string) []string {
	var out []string
	for _, c := range BodyConnections {
		if c.From == name {
			out = append(out, c.To)
		}
	}
	return out
}
