package model

// Student is the examinee identity. Name and roll number are denormalized
// into admin broadcasts for UI convenience.
type Student struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	Email      string `json:"email,omitempty"`
}
