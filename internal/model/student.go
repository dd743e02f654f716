package model

import "time"

// Student is a roster entry used for eligibility and reporting.
// Identity itself is resolved by the authentication collaborator.
type Student struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Grade     string    `json:"grade"`
	CreatedAt time.Time `json:"created_at"`
}
