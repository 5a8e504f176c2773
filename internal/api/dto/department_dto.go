package dto

import "time"

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DepartmentResponse response.
type DepartmentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelStatusResponse reports the shared session state.
type ChannelStatusResponse struct {
	State string `json:"state"`
}
