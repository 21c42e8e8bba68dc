package domain

import "time"

// Category classifies the kind of maintenance work.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Location is a room or area of the school estate.
type Location struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}
