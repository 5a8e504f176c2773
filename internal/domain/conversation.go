package domain

import "time"

// Conversation is the persistent thread for one external chat identity.
// It outlives any single ticket; tickets partition its timeline into
// non-overlapping service episodes.
type Conversation struct {
	ID             string
	CustomerID     string
	Address        string
	DisplayName    string
	UnreadCount    int
	LastActivityAt time.Time
	CreatedAt      time.Time
}
