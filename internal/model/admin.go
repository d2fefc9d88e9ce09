package model

import "time"

// Admin is a proctoring administrator account.
type Admin struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AdminLoginRequest is the payload for admin authentication.
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// ResolveIncidentRequest is the payload for marking an incident reviewed.
type ResolveIncidentRequest struct {
	Note string `json:"note" binding:"max=500"`
}
