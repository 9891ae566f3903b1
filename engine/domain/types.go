// Package domain defines the canonical record schema shared by the matching
// engine, the offer lifecycle, and the persistence layer: mechanic profiles,
// assistance requests, and intervention offers.
package domain

import "time"

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Severity grades a diagnosed breakdown.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySerious  Severity = "serious"
)

// ValidSeverities is the set of recognised severities.
var ValidSeverities = map[Severity]bool{
	SeverityMinor: true, SeverityModerate: true, SeveritySerious: true,
}

// RequestStatus tracks an assistance request through its lifecycle.
type RequestStatus string

const (
	RequestPending        RequestStatus = "pending"
	RequestOffersReceived RequestStatus = "offers_received"
	RequestAccepted       RequestStatus = "accepted"
	RequestInProgress     RequestStatus = "in_progress"
	RequestCompleted      RequestStatus = "completed"
	RequestCancelled      RequestStatus = "cancelled"
)

// requestRank orders statuses along the forward-only lifecycle.
var requestRank = map[RequestStatus]int{
	RequestPending:        0,
	RequestOffersReceived: 1,
	RequestAccepted:       2,
	RequestInProgress:     3,
	RequestCompleted:      4,
}

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// CanTransitionTo reports whether moving to next is a legal request
// transition. Forward moves only; cancellation is legal from any
// non-terminal state.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == RequestCancelled {
		return true
	}
	from, okFrom := requestRank[s]
	to, okTo := requestRank[next]
	return okFrom && okTo && to > from
}

// OfferStatus tracks an intervention offer. Accepted and rejected are terminal.
type OfferStatus string

const (
	OfferSent     OfferStatus = "sent"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// Terminal reports whether the offer can no longer change state.
func (s OfferStatus) Terminal() bool { return s != OfferSent }

// MechanicProfile is a mechanic's public record in the mechanics collection.
// Availability is toggled by the mechanic; rating and review count are
// maintained by an external aggregation process.
type MechanicProfile struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	WhatsApp    string    `json:"whatsapp,omitempty"`
	Specialties []string  `json:"specialties"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	RadiusKm    float64   `json:"radius_km"`
	Available   bool      `json:"available"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Location returns the profile position as Coordinates.
func (m MechanicProfile) Location() Coordinates {
	return Coordinates{Latitude: m.Latitude, Longitude: m.Longitude}
}

// RequesterInfo identifies the automobilist behind a request.
type RequesterInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// DiagnosticSnapshot is the part of a diagnostic result persisted on a
// request so mechanics can see what they are responding to.
type DiagnosticSnapshot struct {
	Symptom     string   `json:"symptom"`
	SubCategory string   `json:"sub_category"`
	Severity    Severity `json:"severity"`
}

// AssistanceRequest is one automobilist's call for help, persisted in the
// requests collection.
type AssistanceRequest struct {
	ID          string             `json:"id"`
	RequesterID string             `json:"requester_id"`
	Requester   RequesterInfo      `json:"requester"`
	Status      RequestStatus      `json:"status"`
	Diagnostic  DiagnosticSnapshot `json:"diagnostic"`
	Latitude    float64            `json:"latitude"`
	Longitude   float64            `json:"longitude"`
	Address     string             `json:"address,omitempty"`
	CreatedAt   time.Time          `json:"created_at,omitempty"`
}

// Location returns the request position as Coordinates.
func (r AssistanceRequest) Location() Coordinates {
	return Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
}

// MechanicSummary is the denormalized mechanic snapshot carried on an offer.
type MechanicSummary struct {
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Phone       string   `json:"phone"`
	WhatsApp    string   `json:"whatsapp,omitempty"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Specialties []string `json:"specialties"`
}

// Summary builds the offer snapshot for a profile.
func (m MechanicProfile) Summary() MechanicSummary {
	return MechanicSummary{
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Phone:       m.Phone,
		WhatsApp:    m.WhatsApp,
		Rating:      m.Rating,
		ReviewCount: m.ReviewCount,
		Specialties: m.Specialties,
	}
}

// InterventionOffer is a mechanic's response to a request, persisted in the
// offers collection. Exactly one offer per request may reach OfferAccepted.
type InterventionOffer struct {
	ID               string          `json:"id"`
	RequestID        string          `json:"request_id"`
	MechanicID       string          `json:"mechanic_id"`
	Mechanic         MechanicSummary `json:"mechanic"`
	DistanceKm       float64         `json:"distance_km"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	PriceMin         int             `json:"price_min,omitempty"`
	PriceMax         int             `json:"price_max,omitempty"`
	Message          string          `json:"message,omitempty"`
	Status           OfferStatus     `json:"status"`
	CreatedAt        time.Time       `json:"created_at,omitempty"`
}
