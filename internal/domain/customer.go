package domain

import "time"

// Customer is an external contact identified by a normalized channel address.
type Customer struct {
	ID        string
	Name      string
	Address   string
	Company   *string
	Removed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
