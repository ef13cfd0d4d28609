package health

import (
	"context"
	"fmt"
)

// StoreReader is satisfied by the IP store.
type StoreReader interface {
	Read() (string, error)
}

// Saturation is satisfied by the admission gate.
type Saturation interface {
	SessionStats
	Saturated() bool
}

// StoreChecker reports the store unhealthy when it cannot be read.
func StoreChecker(store StoreReader) HealthChecker {
	return func(context.Context) error {
		_, err := store.Read()
		return err
	}
}

// SaturationChecker reports degraded while every session slot is taken.
func SaturationChecker(gate Saturation) DegradedChecker {
	return func(context.Context) (bool, string) {
		if !gate.Saturated() {
			return false, ""
		}
		return true, fmt.Sprintf("all %d session slots in use", gate.Max())
	}
}
