// Package domain contains core concepts of the relay.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// User is a registered identity. The relay only flips Online/LastSeen;
// everything else is owned by the account surface.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Online       bool
	LastSeen     time.Time
	CreatedAt    time.Time
}
