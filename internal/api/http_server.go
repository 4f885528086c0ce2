package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// BookingAPI is the booking core as seen by the HTTP layer.
type BookingAPI interface {
	CheckAvailability(ctx context.Context, req models.BookingRequest) (models.AvailabilityCheck, error)
	CalculatePrice(ctx context.Context, req models.BookingRequest) (models.PriceCalculation, error)
	CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID string) error
	ListUserBookings(ctx context.Context, userID string, filter models.BookingFilter) ([]*models.Booking, error)
	JoinWaitlist(ctx context.Context, req models.BookingRequest) (*models.WaitlistEntry, error)
	GetWaitlistPosition(ctx context.Context, userID string, bucket models.Bucket) (models.WaitlistPosition, error)
	WithdrawWaitlist(ctx context.Context, userID, entryID string) error
	ListUserWaitlist(ctx context.Context, userID string) ([]*models.WaitlistEntry, error)
	Ping(ctx context.Context) error
}

// ReportWriter renders the booking report.
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer, filter models.BookingFilter) error
}

type ctxKey int

const userIDKey ctxKey = iota

// HTTPServer exposes the booking core as a JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     BookingAPI
	reports ReportWriter
	limiter *rateLimiter
	server  *http.Server
	logger  zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc BookingAPI, reports ReportWriter, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		reports: reports,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger.With().Str("component", "http").Logger(),
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.identityMiddleware, s.rateLimitMiddleware)
	api.HandleFunc("/availability", s.handleAvailability).Methods(http.MethodGet)
	api.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	api.HandleFunc("/reports/bookings.xlsx", s.handleReport).Methods(http.MethodGet)

	user := api.NewRoute().Subrouter()
	user.Use(s.requireUser)
	user.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	user.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	user.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	user.HandleFunc("/bookings/{id}/cancel", s.handleCancelBooking).Methods(http.MethodPost)
	user.HandleFunc("/waitlist", s.handleJoinWaitlist).Methods(http.MethodPost)
	user.HandleFunc("/waitlist", s.handleListWaitlist).Methods(http.MethodGet)
	user.HandleFunc("/waitlist/position", s.handleWaitlistPosition).Methods(http.MethodGet)
	user.HandleFunc("/waitlist/{id}", s.handleWithdrawWaitlist).Methods(http.MethodDelete)

	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.IncHTTP(route, strconv.Itoa(recorder.status))

		s.logger.Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// identityMiddleware stores the caller id set by the upstream auth layer.
func (s *HTTPServer) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(s.cfg.UserHeader))
		if userID != "" {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFromContext(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("%s header is required", s.cfg.UserHeader))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func clientKey(r *http.Request) string {
	if userID := userFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
