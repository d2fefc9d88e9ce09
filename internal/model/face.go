package model

// FaceSample is one observation from the external face-detection capability,
// delivered roughly once per second while the student's camera is active.
// The backend never runs detection itself; it only consumes this shape.
type FaceSample struct {
	FaceDetected  bool    `json:"face_detected"`
	MultipleFaces bool    `json:"multiple_faces"`
	LookingAway   bool    `json:"looking_away"`
	Confidence    float64 `json:"confidence"`
}
