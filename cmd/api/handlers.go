package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sosmeca/sosmeca-server/engine/diagnosis"
	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/engine/geo"
	"github.com/sosmeca/sosmeca-server/engine/knowledge"
	"github.com/sosmeca/sosmeca-server/engine/matching"
	"github.com/sosmeca/sosmeca-server/engine/offers"
	"github.com/sosmeca/sosmeca-server/pkg/directory"
	"github.com/sosmeca/sosmeca-server/pkg/handoff"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

type handlers struct {
	cols     collections
	matching *matching.Service
	offers   *offers.Service
	dir      *directory.Directory
	cases    *knowledge.Store
	log      *slog.Logger
}

func (h *handlers) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)

	mux.HandleFunc("GET /api/diagnostic/questions/{id}", h.handleQuestion)
	mux.HandleFunc("POST /api/diagnostic/resolve", h.handleResolve)

	mux.HandleFunc("POST /api/requests", h.handleBroadcast)
	mux.HandleFunc("GET /api/requests/{id}", h.handleGetRequest)
	mux.HandleFunc("GET /api/requests/{id}/offers", h.handleListOffers)
	mux.HandleFunc("POST /api/requests/{id}/cancel", h.handleCancelRequest)

	mux.HandleFunc("POST /api/offers", h.handleCreateOffer)
	mux.HandleFunc("POST /api/offers/{id}/accept", h.handleAcceptOffer)
	mux.HandleFunc("POST /api/offers/{id}/reject", h.handleRejectOffer)
	mux.HandleFunc("GET /api/offers/{id}/handoff", h.handleHandoff)

	mux.HandleFunc("GET /api/mechanics/nearby", h.handleNearby)
	mux.HandleFunc("POST /api/mechanics", h.handleUpsertMechanic)
	mux.HandleFunc("PUT /api/mechanics/{id}/availability", h.handleAvailability)

	if h.cases != nil {
		mux.HandleFunc("GET /api/cases/similar", h.handleSimilarCases)
	}
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func (h *handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoLocation),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, domain.ErrInvalidProfile),
		errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyAccepted),
		errors.Is(err, domain.ErrOfferTerminal),
		errors.Is(err, domain.ErrOfferMismatch),
		errors.Is(err, domain.ErrBadTransition),
		errors.Is(err, store.ErrExists),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// --- Diagnostic ---

func (h *handlers) handleQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := diagnosis.QuestionByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown question")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answers diagnosis.Answers `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, diagnosis.Resolve(body.Answers))
}

// --- Requests ---

type broadcastBody struct {
	RequesterID string                    `json:"requester_id"`
	Requester   domain.RequesterInfo      `json:"requester"`
	Diagnostic  domain.DiagnosticSnapshot `json:"diagnostic"`
	Location    *domain.Coordinates       `json:"location"`
	Address     string                    `json:"address"`
}

type broadcastResponse struct {
	RequestID  string               `json:"request_id,omitempty"`
	RequestErr string               `json:"request_error,omitempty"`
	Candidates []matching.Candidate `json:"candidates"`
}

func (h *handlers) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var body broadcastBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.matching.Broadcast(r.Context(), matching.BroadcastInput{
		RequesterID: body.RequesterID,
		Requester:   body.Requester,
		Diagnostic:  body.Diagnostic,
		Location:    body.Location,
		Address:     body.Address,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := broadcastResponse{RequestID: out.RequestID, Candidates: out.Candidates}
	if out.RequestErr != nil {
		resp.RequestErr = out.RequestErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.cols.requests.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handlers) handleListOffers(w http.ResponseWriter, r *http.Request) {
	list, err := h.offers.ListForRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.offers.CancelRequest(r.Context(), r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.RequestCancelled)})
}

// --- Offers ---

type createOfferBody struct {
	RequestID  string `json:"request_id"`
	MechanicID string `json:"mechanic_id"`
	PriceMin   int    `json:"price_min"`
	PriceMax   int    `json:"price_max"`
	Message    string `json:"message"`
}

func (h *handlers) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var body createOfferBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.cols.requests.Get(r.Context(), body.RequestID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	mech, err := h.mechanicProfile(r, body.MechanicID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	offer, err := h.offers.Create(r.Context(), offers.CreateInput{
		Request:    req,
		Mechanic:   mech,
		DistanceKm: geo.DistanceKm(req.Location(), mech.Location()),
		PriceMin:   body.PriceMin,
		PriceMax:   body.PriceMax,
		Message:    body.Message,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// mechanicProfile prefers the Neo4j directory when wired.
func (h *handlers) mechanicProfile(r *http.Request, id string) (domain.MechanicProfile, error) {
	if h.dir != nil {
		return h.dir.Get(r.Context(), id)
	}
	return h.cols.mechanics.Get(r.Context(), id)
}

func (h *handlers) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.offers.Accept(r.Context(), r.PathValue("id"), body.RequestID); err != nil {
		var cerr *domain.ConsistencyError
		if errors.As(err, &cerr) {
			// The offer side landed; surface the divergence instead of a 500.
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted", "warning": "request status update pending",
			})
			return
		}
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *handlers) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	if err := h.offers.Reject(r.Context(), r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type handoffResponse struct {
	WhatsAppURL string `json:"whatsapp_url,omitempty"`
	TelURL      string `json:"tel_url"`
	Message     string `json:"message"`
}

// handleHandoff returns the out-of-band contact links for an offer's
// mechanic, pre-filled from the request's diagnostic.
func (h *handlers) handleHandoff(w http.ResponseWriter, r *http.Request) {
	offer, err := h.cols.offers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	breakdown := ""
	if req, err := h.cols.requests.Get(r.Context(), offer.RequestID); err == nil {
		breakdown = req.Diagnostic.SubCategory
		if breakdown == "" {
			breakdown = req.Diagnostic.Symptom
		}
	}

	msg := handoff.GreetingMessage(offer.Mechanic.FirstName, breakdown)
	resp := handoffResponse{TelURL: handoff.TelURL(offer.Mechanic.Phone), Message: msg}
	phone := offer.Mechanic.WhatsApp
	if phone == "" {
		phone = offer.Mechanic.Phone
	}
	if phone != "" {
		resp.WhatsAppURL = handoff.WhatsAppURL(phone, msg)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Mechanics ---

func (h *handlers) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	candidates, err := h.matching.FindCandidates(r.Context(), &domain.Coordinates{Latitude: lat, Longitude: lon})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (h *handlers) handleUpsertMechanic(w http.ResponseWriter, r *http.Request) {
	var p domain.MechanicProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateProfile(p); err != nil {
		h.writeDomainError(w, err)
		return
	}

	created, err := h.cols.mechanics.Create(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if h.dir != nil {
		if err := h.dir.Upsert(r.Context(), created); err != nil {
			h.log.Warn("directory upsert failed", "mechanic_id", created.ID, "err", err)
		}
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if err := h.cols.mechanics.Update(r.Context(), id, map[string]any{"available": body.Available}); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if h.dir != nil {
		if err := h.dir.SetAvailability(r.Context(), id, body.Available); err != nil {
			h.log.Warn("directory availability update failed", "mechanic_id", id, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "available": body.Available})
}

// --- Case base ---

func (h *handlers) handleSimilarCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	topK := 5
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		topK = n
	}

	matches, err := h.cases.Similar(r.Context(), q, r.URL.Query().Get("symptom"), topK)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}
