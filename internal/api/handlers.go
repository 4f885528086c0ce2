package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/service"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type bookingRequestDTO struct {
	CourtID     string  `json:"court_id"`
	CoachID     *string `json:"coach_id"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	RacketCount int     `json:"racket_count"`
	ShoesCount  int     `json:"shoes_count"`
}

func (d bookingRequestDTO) toRequest(userID string) (models.BookingRequest, error) {
	w, err := models.ParseTimeWindow(d.StartTime, d.EndTime)
	if err != nil {
		return models.BookingRequest{}, err
	}
	coachID := d.CoachID
	if coachID != nil && strings.TrimSpace(*coachID) == "" {
		coachID = nil
	}
	return models.BookingRequest{
		UserID:      userID,
		CourtID:     strings.TrimSpace(d.CourtID),
		CoachID:     coachID,
		Window:      w,
		RacketCount: d.RacketCount,
		ShoesCount:  d.ShoesCount,
	}, nil
}

type bookingDTO struct {
	ID               string                   `json:"id"`
	UserID           string                   `json:"user_id"`
	CourtID          string                   `json:"court_id"`
	CoachID          *string                  `json:"coach_id"`
	StartTime        string                   `json:"start_time"`
	EndTime          string                   `json:"end_time"`
	RacketCount      int                      `json:"racket_count"`
	ShoesCount       int                      `json:"shoes_count"`
	BasePrice        decimal.Decimal          `json:"base_price"`
	PricingModifiers []models.PricingModifier `json:"pricing_modifiers"`
	EquipmentFee     decimal.Decimal          `json:"equipment_fee"`
	CoachFee         decimal.Decimal          `json:"coach_fee"`
	TotalPrice       decimal.Decimal          `json:"total_price"`
	Status           string                   `json:"status"`
	CreatedAt        time.Time                `json:"created_at"`
	CancelledAt      *time.Time               `json:"cancelled_at,omitempty"`
}

func toBookingDTO(b *models.Booking) bookingDTO {
	mods := b.PricingModifiers
	if mods == nil {
		mods = []models.PricingModifier{}
	}
	return bookingDTO{
		ID:               b.ID,
		UserID:           b.UserID,
		CourtID:          b.CourtID,
		CoachID:          b.CoachID,
		StartTime:        models.FormatTimestamp(b.Window.Start),
		EndTime:          models.FormatTimestamp(b.Window.End),
		RacketCount:      b.RacketCount,
		ShoesCount:       b.ShoesCount,
		BasePrice:        b.BasePrice,
		PricingModifiers: mods,
		EquipmentFee:     b.EquipmentFee,
		CoachFee:         b.CoachFee,
		TotalPrice:       b.TotalPrice,
		Status:           b.Status,
		CreatedAt:        b.CreatedAt,
		CancelledAt:      b.CancelledAt,
	}
}

type waitlistDTO struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CourtID     string     `json:"court_id"`
	CoachID     *string    `json:"coach_id"`
	StartTime   string     `json:"start_time"`
	EndTime     string     `json:"end_time"`
	RacketCount int        `json:"racket_count"`
	ShoesCount  int        `json:"shoes_count"`
	Status      string     `json:"status"`
	Position    *int       `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	BookingID   *string    `json:"booking_id,omitempty"`
}

func toWaitlistDTO(e *models.WaitlistEntry) waitlistDTO {
	return waitlistDTO{
		ID:          e.ID,
		UserID:      e.UserID,
		CourtID:     e.CourtID,
		CoachID:     e.CoachID,
		StartTime:   models.FormatTimestamp(e.Window.Start),
		EndTime:     models.FormatTimestamp(e.Window.End),
		RacketCount: e.RacketCount,
		ShoesCount:  e.ShoesCount,
		Status:      e.Status,
		Position:    e.Position,
		CreatedAt:   e.CreatedAt,
		NotifiedAt:  e.NotifiedAt,
		BookingID:   e.BookingID,
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r.URL.Query(), userFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	check, err := s.svc.CheckAvailability(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *HTTPServer) handlePrice(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r.URL.Query(), userFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := s.svc.CalculatePrice(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if price.PricingModifiers == nil {
		price.PricingModifiers = []models.PricingModifier{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base_price":        price.BasePrice,
		"pricing_modifiers": price.PricingModifiers,
		"equipment_fee":     price.EquipmentFee,
		"coach_fee":         price.CoachFee,
		"total_price":       price.TotalPrice,
	})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBookingRequest(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(booking))
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		CourtID: strings.TrimSpace(q.Get("court_id")),
		Status:  strings.TrimSpace(q.Get("status")),
	}
	var err error
	if filter.From, err = optionalTimestamp(q, "from"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.To, err = optionalTimestamp(q, "to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := s.svc.ListUserBookings(r.Context(), userFromContext(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.GetBooking(r.Context(), userFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)
	id := mux.Vars(r)["id"]

	if err := s.svc.CancelBooking(ctx, userID, id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	booking, err := s.svc.GetBooking(ctx, userID, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

func (s *HTTPServer) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBookingRequest(w, r)
	if !ok {
		return
	}
	entry, err := s.svc.JoinWaitlist(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"waitlist_id": entry.ID,
		"position":    entry.Position,
		"status":      entry.Status,
	})
}

func (s *HTTPServer) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListUserWaitlist(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]waitlistDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toWaitlistDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *HTTPServer) handleWaitlistPosition(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	courtID := strings.TrimSpace(q.Get("court_id"))
	if courtID == "" {
		writeError(w, http.StatusBadRequest, "court_id is required")
		return
	}
	window, err := models.ParseTimeWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := s.svc.GetWaitlistPosition(r.Context(), userFromContext(r.Context()), models.Bucket{CourtID: courtID, Window: window})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *HTTPServer) handleWithdrawWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.WithdrawWaitlist(r.Context(), userFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "reports are disabled")
		return
	}
	q := r.URL.Query()
	filter := models.BookingFilter{
		CourtID: strings.TrimSpace(q.Get("court_id")),
		Status:  strings.TrimSpace(q.Get("status")),
	}
	var err error
	if filter.From, err = optionalTimestamp(q, "from"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.To, err = optionalTimestamp(q, "to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	if err := s.reports.Write(r.Context(), w, filter); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write report")
	}
}

// writeServiceError maps core errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var admErr *service.AdmissionError
	switch {
	case errors.As(err, &admErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        admErr.Error(),
			"reason":       admErr.Reason,
			"availability": admErr.Check,
		})
	case errors.Is(err, domain.ErrInvalidWindow), errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrAlreadyWaitlisted),
		errors.Is(err, domain.ErrInsufficientCapacity):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrResourceBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBookingRequest(w http.ResponseWriter, r *http.Request) (models.BookingRequest, bool) {
	var body bookingRequestDTO
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return models.BookingRequest{}, false
	}
	req, err := body.toRequest(userFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return models.BookingRequest{}, false
	}
	return req, true
}

func requestFromQuery(q url.Values, userID string) (models.BookingRequest, error) {
	dto := bookingRequestDTO{
		CourtID:   q.Get("court_id"),
		StartTime: q.Get("start_time"),
		EndTime:   q.Get("end_time"),
	}
	if coach := strings.TrimSpace(q.Get("coach_id")); coach != "" {
		dto.CoachID = &coach
	}
	var err error
	if dto.RacketCount, err = optionalInt(q, "racket_count"); err != nil {
		return models.BookingRequest{}, err
	}
	if dto.ShoesCount, err = optionalInt(q, "shoes_count"); err != nil {
		return models.BookingRequest{}, err
	}
	return dto.toRequest(userID)
}

func optionalInt(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func optionalTimestamp(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := models.ParseTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &t, nil
}
