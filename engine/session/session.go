// Package session tracks one requester's journey through the assistance
// flow: diagnostic questionnaire, location capture, broadcast, offer
// review, and connection with the chosen mechanic.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sosmeca/sosmeca-server/engine/diagnosis"
	"github.com/sosmeca/sosmeca-server/engine/domain"
)

// Step is the requester's position in the flow.
type Step string

const (
	StepIdle         Step = "idle"
	StepDiagnostic   Step = "diagnostic"
	StepLocation     Step = "location"
	StepBroadcasting Step = "broadcasting"
	StepOffers       Step = "offers"
	StepConnected    Step = "connected"
)

// ErrBadStep reports an operation invoked outside its step.
var ErrBadStep = errors.New("session: operation not allowed in current step")

// stepRank orders the flow. Transitions only move forward; Reset is the
// single way back.
var stepRank = map[Step]int{
	StepIdle:         0,
	StepDiagnostic:   1,
	StepLocation:     2,
	StepBroadcasting: 3,
	StepOffers:       4,
	StepConnected:    5,
}

// State is one requester's session. Safe for concurrent use: offer
// snapshots arrive from subscription goroutines while the requester drives
// the flow.
type State struct {
	mu sync.Mutex

	step     Step
	question string
	answers  diagnosis.Answers
	result   *diagnosis.Result

	location *domain.Coordinates
	address  string

	requestID string
	offers    []domain.InterventionOffer
	selected  *domain.InterventionOffer
}

// New returns a session at the idle step.
func New() *State {
	s := &State{}
	s.reset()
	return s
}

func (s *State) reset() {
	s.step = StepIdle
	s.question = diagnosis.RootQuestionID
	s.answers = make(diagnosis.Answers)
	s.result = nil
	s.location = nil
	s.address = ""
	s.requestID = ""
	s.offers = nil
	s.selected = nil
}

// Reset returns the session to its initial state from any step.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Step reports the current step.
func (s *State) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *State) advance(from, to Step) error {
	if s.step != from {
		return fmt.Errorf("%w: %s -> %s while %s", ErrBadStep, from, to, s.step)
	}
	if stepRank[to] <= stepRank[from] {
		return fmt.Errorf("%w: %s -> %s is not forward", ErrBadStep, from, to)
	}
	s.step = to
	return nil
}

// StartDiagnostic moves idle -> diagnostic and positions the questionnaire
// at the root question.
func (s *State) StartDiagnostic() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advance(StepIdle, StepDiagnostic); err != nil {
		return err
	}
	s.question = diagnosis.RootQuestionID
	return nil
}

// Answer records the selected option for the current question and follows
// the graph. When the questionnaire terminates, the result is resolved and
// the session moves to the location step.
func (s *State) Answer(optionID string) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepDiagnostic {
		return false, fmt.Errorf("%w: answer while %s", ErrBadStep, s.step)
	}

	s.answers[s.question] = optionID
	next, terminal := diagnosis.Next(s.question, optionID)
	if !terminal {
		s.question = next
		return false, nil
	}

	r := diagnosis.Resolve(s.answers)
	s.result = &r
	s.step = StepLocation
	return true, nil
}

// CurrentQuestion returns the question the requester faces, or false once
// the questionnaire is over.
func (s *State) CurrentQuestion() (diagnosis.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepDiagnostic {
		return diagnosis.Question{}, false
	}
	q, ok := diagnosis.QuestionByID(s.question)
	return q, ok
}

// Result returns the resolved diagnostic, nil before the questionnaire
// completes.
func (s *State) Result() *diagnosis.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// SetLocation records the breakdown position and moves to broadcasting.
func (s *State) SetLocation(loc domain.Coordinates, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := domain.ValidateCoordinates(loc); err != nil {
		return err
	}
	if err := s.advance(StepLocation, StepBroadcasting); err != nil {
		return err
	}
	s.location = &loc
	s.address = address
	return nil
}

// Location returns the recorded position, nil before capture.
func (s *State) Location() (*domain.Coordinates, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		return nil, s.address
	}
	loc := *s.location
	return &loc, s.address
}

// AttachRequest records the id of the broadcast request. Allowed only while
// broadcasting; a failed request write simply never attaches.
func (s *State) AttachRequest(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepBroadcasting {
		return fmt.Errorf("%w: attach request while %s", ErrBadStep, s.step)
	}
	s.requestID = requestID
	return nil
}

// RequestID returns the attached request id, empty when none.
func (s *State) RequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestID
}

// OffersSnapshot replaces the session's offer list with a fresh snapshot.
// The first non-empty snapshot moves broadcasting -> offers. Snapshots
// arriving after the session left the offer steps are dropped.
func (s *State) OffersSnapshot(offers []domain.InterventionOffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.step {
	case StepBroadcasting:
		if len(offers) == 0 {
			return
		}
		s.step = StepOffers
	case StepOffers:
	default:
		return
	}
	s.offers = append([]domain.InterventionOffer(nil), offers...)
}

// Offers returns the latest offer snapshot.
func (s *State) Offers() []domain.InterventionOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.InterventionOffer(nil), s.offers...)
}

// SelectOffer records the accepted offer and moves offers -> connected.
func (s *State) SelectOffer(offer domain.InterventionOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advance(StepOffers, StepConnected); err != nil {
		return err
	}
	s.selected = &offer
	return nil
}

// Selected returns the accepted offer, nil before connection.
func (s *State) Selected() *domain.InterventionOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	o := *s.selected
	return &o
}
