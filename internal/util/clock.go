package util

import "time"

// Clock abstrae la hora actual para poder fijarla en tests.
type Clock interface {
	Now() time.Time
}

// SystemClock devuelve la hora del sistema.
type SystemClock struct{}

// Now implementa Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock devuelve siempre el mismo instante; pensado para tests.
type FixedClock struct {
	Instant time.Time
}

// Now implementa Clock.
func (c FixedClock) Now() time.Time {
	return c.Instant
}
