package model

import "time"

// CarStatus is the live state reported by a connected client.
type CarStatus struct {
	Position Vec3
	Velocity Vec3
	Heading  float64 // degrees
}

// Competitor is a connected participant. Implementations must be safe for
// concurrent reads.
type Competitor interface {
	ID() string
	Name() string
	CarModel() string
	Status() CarStatus
	Ping() time.Duration
	Connected() bool
}
