package domain

import "fmt"

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(c Coordinates) error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// ValidateProfile checks a mechanic profile before it is written.
func ValidateProfile(m MechanicProfile) error {
	if m.FirstName == "" && m.LastName == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if m.Phone == "" {
		return fmt.Errorf("%w: missing phone", ErrInvalidProfile)
	}
	if m.RadiusKm <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidProfile, m.RadiusKm)
	}
	if m.Rating < 0 || m.Rating > 5 {
		return fmt.Errorf("%w: rating %v out of [0,5]", ErrInvalidProfile, m.Rating)
	}
	return ValidateCoordinates(m.Location())
}

// ValidateRequest checks an assistance request before it is written.
func ValidateRequest(r AssistanceRequest) error {
	if r.Diagnostic.Symptom == "" {
		return fmt.Errorf("%w: missing diagnostic symptom", ErrInvalidRequest)
	}
	if !ValidSeverities[r.Diagnostic.Severity] {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRequest, r.Diagnostic.Severity)
	}
	return ValidateCoordinates(r.Location())
}
