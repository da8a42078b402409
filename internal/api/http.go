package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"citygasd/internal/auth"
	"citygasd/internal/billing"
	"citygasd/internal/coordinator"
	"citygasd/internal/meter"
	"citygasd/internal/provider"
	"citygasd/internal/storage"
	"citygasd/internal/ui"
)

// Server bundles the request handlers with their dependencies. Auth is
// optional; without it every route is open, which suits a LAN-only
// deployment.
type Server struct {
	Store storage.Storage
	Coord *coordinator.Coordinator
	Meter meter.Control
	Calc  billing.Calculator
	Auth  *auth.Service
}

// Handler builds the full HTTP handler, including the token middleware when
// auth is configured.
func (s *Server) Handler() http.Handler {
	mux := s.NewMux()
	if s.Auth != nil {
		return s.Auth.Middleware(mux)
	}
	return mux
}

// NewMux constructs the HTTP mux, wiring the billing API, metrics, health
// endpoints, docs and the embedded UI.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Store.Ping(r.Context()); err != nil {
			log.Printf("readyz: db ping failed: %v", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/api/bill", s.handleBill)
	mux.HandleFunc("/api/bill/estimate", s.handleEstimate)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/snapshot/", s.handleSnapshotField)
	mux.Handle("/api/refresh", s.protect("refresh", "trigger", http.HandlerFunc(s.handleRefresh)))
	mux.HandleFunc("/api/meter", s.handleMeter)
	mux.HandleFunc("/api/cycle", s.handleCycle)
	mux.HandleFunc("/api/invoice", s.handleInvoice)
	mux.HandleFunc("/api/providers", s.handleProviders)
	mux.HandleFunc("/api/settings/", s.handleSettings)

	RegisterDocsHandler(mux)

	mux.Handle("/ui/", http.StripPrefix("/ui/", ui.Handler()))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	return mux
}

// protect wraps h with a permission check when auth is configured.
func (s *Server) protect(obj, act string, h http.Handler) http.Handler {
	if s.Auth == nil {
		return h
	}
	return s.Auth.RequirePermission(obj, act, h)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// liveBill computes the running bill, combining in the archived previous
// cycle during a bimonthly billing month.
func (s *Server) liveBill(r *http.Request) (billing.BillResult, int, error) {
	ctx := r.Context()

	m, err := s.Meter.Read(ctx)
	if err != nil {
		if errors.Is(err, meter.ErrNoReading) {
			return billing.BillResult{}, http.StatusNotFound, err
		}
		return billing.BillResult{}, http.StatusInternalServerError, err
	}
	prev, curr, err := s.Coord.Factors(ctx)
	if err != nil {
		return billing.BillResult{}, http.StatusInternalServerError, err
	}

	now := time.Now()
	res, err := s.Calc.Bill(billing.Reading{
		StartVolume:   m.StartVolume,
		CurrentVolume: m.CurrentVolume,
	}, prev, curr, now)
	if err != nil {
		return billing.BillResult{}, billErrStatus(err), err
	}

	if s.Calc.IsBillingMonth(now) {
		inv, err := s.Store.GetLastInvoice(ctx)
		if err != nil {
			return billing.BillResult{}, http.StatusInternalServerError, err
		}
		if inv != nil {
			var archived billing.BillResult
			if err := json.Unmarshal(inv.Payload, &archived); err == nil {
				res = billing.CombineBimonthly(archived, res)
			} else {
				log.Printf("api: decode archived invoice %s: %v", inv.Period, err)
			}
		}
	}
	return res, http.StatusOK, nil
}

func billErrStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrMissingFactors):
		return http.StatusServiceUnavailable
	case errors.Is(err, billing.ErrNegativeUsage):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, status, err := s.liveBill(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	m, err := s.Meter.Read(ctx)
	if err != nil {
		if errors.Is(err, meter.ErrNoReading) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	prev, curr, err := s.Coord.Factors(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	reading := billing.Reading{StartVolume: m.StartVolume, CurrentVolume: m.CurrentVolume}
	now := time.Now()
	res, err := s.Calc.EstimateBill(reading, prev, curr, now)
	if err != nil {
		http.Error(w, err.Error(), billErrStatus(err))
		return
	}
	usage, err := s.Calc.EstimateUsage(reading, now)
	if err != nil {
		http.Error(w, err.Error(), billErrStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, struct {
		EstimatedUsage float64            `json:"estimated_usage"`
		EstimatedBill  billing.BillResult `json:"estimated_bill"`
	}{usage, res})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.Coord.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSnapshotField serves PUT /api/snapshot/{field} for manual entry.
func (s *Server) handleSnapshotField(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.protect("snapshot", "write", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		field := strings.TrimPrefix(r.URL.Path, "/api/snapshot/")
		var body struct {
			Value float64 `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if err := s.Coord.SetField(r.Context(), field, body.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "field": field})
	})).ServeHTTP(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out, err := s.Coord.Refresh(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMeter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m, err := s.Meter.Read(r.Context())
		if err != nil {
			if errors.Is(err, meter.ErrNoReading) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, m)

	case http.MethodPut:
		s.protect("meter", "write", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				CurrentVolume float64 `json:"current_volume"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad request body", http.StatusBadRequest)
				return
			}
			if err := s.Meter.SetCurrent(r.Context(), body.CurrentVolume); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})).ServeHTTP(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, err := s.Store.GetCycleState(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	now := time.Now()
	start := s.Calc.LastReadingDate(now)
	resp := struct {
		ReadingDay         int       `json:"reading_day"`
		CycleStart         time.Time `json:"cycle_start"`
		NextReadingDate    time.Time `json:"next_reading_date"`
		LastRolloverPeriod string    `json:"last_rollover_period,omitempty"`
		BillingMonth       bool      `json:"billing_month"`
	}{
		ReadingDay:      s.Calc.ReadingDay,
		CycleStart:      start,
		NextReadingDate: s.Calc.NextReadingDate(start),
		BillingMonth:    s.Calc.IsBillingMonth(now),
	}
	if state != nil {
		resp.LastRolloverPeriod = state.LastRolloverPeriod
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	inv, err := s.Store.GetLastInvoice(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if inv == nil {
		http.Error(w, "no closed cycle yet", http.StatusNotFound)
		return
	}
	var bill billing.BillResult
	if err := json.Unmarshal(inv.Payload, &bill); err != nil {
		http.Error(w, "corrupt invoice payload", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Period   string             `json:"period"`
		ClosedAt time.Time          `json:"closed_at"`
		Bill     billing.BillResult `json:"bill"`
	}{inv.Period, inv.ClosedAt, bill})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type item struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	var out []item
	for _, cfg := range provider.List() {
		out = append(out, item{Key: cfg.Key, Name: cfg.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSettings serves GET and PUT on /api/settings/{key}. Writes are
// admin-only when auth is configured.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings/")
	if key == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		val, err := s.Store.GetSetting(r.Context(), key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": val})

	case http.MethodPut:
		s.protect("settings", "write", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Value string `json:"value"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad request body", http.StatusBadRequest)
				return
			}
			if err := s.Store.SetSetting(r.Context(), key, body.Value); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "key": key})
		})).ServeHTTP(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
