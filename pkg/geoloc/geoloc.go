// Package geoloc abstracts position acquisition for the requester flow.
package geoloc

import (
	"context"
	"errors"

	"github.com/sosmeca/sosmeca-server/engine/domain"
)

var (
	// ErrPermissionDenied means the user refused to share their position.
	ErrPermissionDenied = errors.New("geoloc: permission denied")
	// ErrUnavailable means no position could be acquired.
	ErrUnavailable = errors.New("geoloc: position unavailable")
)

// DefaultAddress stands in when reverse geocoding yields nothing.
const DefaultAddress = "Position actuelle"

// Fix is an acquired position with an optional human-readable address.
type Fix struct {
	Coordinates domain.Coordinates
	Address     string
}

// Provider acquires the requester's current position.
type Provider interface {
	Locate(ctx context.Context) (Fix, error)
}

// Resolve acquires a fix and fills in the address fallback. Callers treat
// any error as location-unknown and fail the flow synchronously.
func Resolve(ctx context.Context, p Provider) (Fix, error) {
	fix, err := p.Locate(ctx)
	if err != nil {
		return Fix{}, err
	}
	if err := domain.ValidateCoordinates(fix.Coordinates); err != nil {
		return Fix{}, errors.Join(ErrUnavailable, err)
	}
	if fix.Address == "" {
		fix.Address = DefaultAddress
	}
	return fix, nil
}

// Static always returns a fixed position, for manual pin-drops and tests.
type Static struct {
	Fix Fix
	Err error
}

func (s Static) Locate(context.Context) (Fix, error) {
	if s.Err != nil {
		return Fix{}, s.Err
	}
	return s.Fix, nil
}
