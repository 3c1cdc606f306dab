package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/errs"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/rides"
	"github.com/example/ride-dispatch/internal/storage"
)

// Server is the HTTP surface of the dispatch core.
type Server struct {
	Rides     *rides.Service
	Matcher   *matcher.Service
	Tracker   *presence.Tracker
	Drivers   storage.DriverStore
	RideStore storage.RideStore
	Kafka     *ingest.KafkaProducer // optional
	WSReg     *dispatch.WSRegistry

	adminKey  string
	staleness time.Duration
	logger    *slog.Logger
	mux       *mux.Router
}

// Deps bundles the collaborators NewServer wires into routes.
type Deps struct {
	Rides     *rides.Service
	Matcher   *matcher.Service
	Tracker   *presence.Tracker
	Drivers   storage.DriverStore
	RideStore storage.RideStore
	Kafka     *ingest.KafkaProducer
	WSReg     *dispatch.WSRegistry
	Logger    *slog.Logger
}

func NewServer(cfg config.ServerConfig, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Rides:     d.Rides,
		Matcher:   d.Matcher,
		Tracker:   d.Tracker,
		Drivers:   d.Drivers,
		RideStore: d.RideStore,
		Kafka:     d.Kafka,
		WSReg:     d.WSReg,
		adminKey:  cfg.AdminAPIKey,
		staleness: cfg.DefaultStaleness,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleCreateRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods(http.MethodGet)
	api.HandleFunc("/driver/{driver_id}/location", s.handleDriverLocation).Methods(http.MethodPut)
	api.HandleFunc("/driver/rides/{ride_id}/status", s.handleUpdateStatus).Methods(http.MethodPost)

	admin := api.PathPrefix("/dispatch").Subrouter()
	admin.Use(s.adminKeyMiddleware)
	admin.HandleFunc("/drivers", s.handleCreateDriver).Methods(http.MethodPost)
	admin.HandleFunc("/drivers/{driver_id}/active", s.handleSetDriverActive).Methods(http.MethodPost)
	admin.HandleFunc("/drivers/{driver_id}/presence", s.handleDriverPresence).Methods(http.MethodGet)
	admin.HandleFunc("/driver-presence", s.handleAllPresence).Methods(http.MethodGet)
	admin.HandleFunc("/available-drivers", s.handleAvailableDrivers).Methods(http.MethodGet)
	admin.HandleFunc("/rides", s.handleListRides).Methods(http.MethodGet)
	admin.HandleFunc("/active-rides", s.handleActiveRides).Methods(http.MethodGet)
	admin.HandleFunc("/rides/{ride_id}/assign", s.handleAssign).Methods(http.MethodPost)
	admin.HandleFunc("/rides/{ride_id}/auto-assign", s.handleAutoAssign).Methods(http.MethodPost)
	admin.HandleFunc("/rides/{ride_id}/cancel", s.handleCancelRide).Methods(http.MethodPost)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	var p models.LocationPing
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.DriverID = driverID
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}

	if s.Kafka != nil {
		if err := s.Kafka.PublishPing(p); err != nil {
			s.logger.Warn("kafka publish failed", "driver_id", driverID, "error", err)
		}
	}
	if err := s.Tracker.RecordPing(r.Context(), p); err != nil {
		if errors.Is(err, presence.ErrOutOfOrderPing) {
			observability.PingsRejected.WithLabelValues("out_of_order").Inc()
		} else {
			observability.PingsRejected.WithLabelValues("invalid").Inc()
		}
		s.writeError(w, err)
		return
	}
	observability.PingsTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDriver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Vehicle string `json:"vehicle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		s.writeError(w, &errs.ValidationError{Field: "name", Reason: "must not be empty"})
		return
	}
	d := &models.Driver{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Phone:     req.Phone,
		Vehicle:   req.Vehicle,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Drivers.CreateDriver(r.Context(), d); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleSetDriverActive(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	var req struct {
		Active bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Drivers.SetDriverActive(r.Context(), driverID, req.Active); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": driverID, "is_active": req.Active})
}

func (s *Server) handleDriverPresence(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	p, err := s.Tracker.Presence(r.Context(), driverID, time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAllPresence(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.Drivers.ListDrivers(r.Context(), false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	now := time.Now().UTC()
	out := make([]models.Presence, 0, len(drivers))
	for _, d := range drivers {
		p, err := s.Tracker.Presence(r.Context(), d.ID, now)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	staleness := s.staleness
	if v := r.URL.Query().Get("minutes_recent"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes < 1 {
			s.writeError(w, &errs.ValidationError{Field: "minutes_recent", Reason: "must be an integer >= 1"})
			return
		}
		staleness = time.Duration(minutes) * time.Minute
	}
	drivers, err := s.Drivers.ListDrivers(r.Context(), true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	avail, err := s.Tracker.ListAvailable(r.Context(), drivers, time.Now().UTC(), staleness)
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.DriversAvailable.Set(float64(len(avail)))

	type availableDriver struct {
		models.Driver
		Lat      float64   `json:"lat"`
		Lng      float64   `json:"lng"`
		LastSeen time.Time `json:"last_seen_utc"`
	}
	out := make([]availableDriver, 0, len(avail))
	for _, c := range avail {
		out = append(out, availableDriver{Driver: c.Driver, Lat: c.Location.Lat, Lng: c.Location.Lng, LastSeen: c.Location.LastSeen})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req rides.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ride, err := s.Rides.Create(r.Context(), req, time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.RideStore.GetRide(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	status := models.RideStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusRequested
	}
	if !rides.IsValidStatus(status) {
		s.writeError(w, &errs.ValidationError{Field: "status", Reason: "unknown status"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			s.writeError(w, &errs.ValidationError{Field: "limit", Reason: "must be between 1 and 200"})
			return
		}
		limit = n
	}
	list, err := s.RideStore.ListRidesByStatus(r.Context(), status, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleActiveRides(w http.ResponseWriter, r *http.Request) {
	list, err := s.RideStore.ListActiveRides(r.Context(), 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DriverID == "" {
		s.writeError(w, &errs.ValidationError{Field: "driver_id", Reason: "must not be empty"})
		return
	}
	ride, err := s.Matcher.Assign(r.Context(), rideID, req.DriverID, time.Now().UTC())
	if err != nil {
		observability.AssignFailures.WithLabelValues("manual", failureReason(err)).Inc()
		s.writeError(w, err)
		return
	}
	observability.AssignmentsTotal.WithLabelValues("manual").Inc()
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	staleness := s.staleness
	var req struct {
		StalenessMinutes int `json:"staleness_minutes"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.StalenessMinutes < 0 {
		s.writeError(w, &errs.ValidationError{Field: "staleness_minutes", Reason: "must be >= 0"})
		return
	}
	if req.StalenessMinutes > 0 {
		staleness = time.Duration(req.StalenessMinutes) * time.Minute
	}
	res, err := s.Matcher.AutoAssign(r.Context(), rideID, time.Now().UTC(), staleness)
	if err != nil {
		observability.AssignFailures.WithLabelValues("auto", failureReason(err)).Inc()
		s.writeError(w, err)
		return
	}
	observability.AssignmentsTotal.WithLabelValues("auto").Inc()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var req struct {
		DriverID string `json:"driver_id"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DriverID == "" {
		s.writeError(w, &errs.ValidationError{Field: "driver_id", Reason: "must not be empty"})
		return
	}
	ride, err := s.Rides.UpdateStatus(r.Context(), rideID, req.DriverID, models.RideStatus(req.Status), time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// handleCancelRide is the operator cancel: no driver scoping, any
// non-terminal ride may be cancelled.
func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ride, err := s.Rides.UpdateStatus(r.Context(), rideID, "", models.StatusCancelled, time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.WSReg.Add(driverID, conn)
	// Drain control frames; drop the session when the client goes away.
	go func() {
		defer s.WSReg.Remove(driverID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeError maps the core's typed failures to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ve  *errs.ValidationError
		ise *errs.InvalidStateError
		due *errs.DriverUnavailableError
		nde *errs.NoDriversAvailableError
		ge  *errs.GeocodeUnavailableError
		ite *errs.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.As(err, &due):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &ise), errors.As(err, &ite), errors.Is(err, presence.ErrOutOfOrderPing):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.As(err, &nde):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &ge):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func failureReason(err error) string {
	var (
		ise *errs.InvalidStateError
		due *errs.DriverUnavailableError
		nde *errs.NoDriversAvailableError
		ge  *errs.GeocodeUnavailableError
	)
	switch {
	case errors.As(err, &ise):
		return "invalid_state"
	case errors.As(err, &due):
		return "driver_unavailable"
	case errors.As(err, &nde):
		return "no_drivers"
	case errors.As(err, &ge):
		return "geocode_unavailable"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
