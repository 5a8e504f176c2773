package dto

import "time"

// CustomerRequest create/update payload.
type CustomerRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Company *string `json:"company,omitempty"`
}

// CustomerResponse response.
type CustomerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Company   *string   `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
