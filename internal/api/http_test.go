package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"citygasd/internal/billing"
	"citygasd/internal/coordinator"
	"citygasd/internal/meter"
	"citygasd/internal/provider"
	"citygasd/internal/storage"
)

type stubGateway struct {
	heat  *provider.HeatData
	price *provider.PriceData
}

func (s stubGateway) ID() string   { return "stub" }
func (s stubGateway) Name() string { return "Stub" }
func (s stubGateway) FetchHeatData(ctx context.Context) (*provider.HeatData, error) {
	return s.heat, nil
}
func (s stubGateway) FetchPriceData(ctx context.Context) (*provider.PriceData, error) {
	return s.price, nil
}

func newTestServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()
	store := storage.NewMemory()
	gw := stubGateway{
		heat:  &provider.HeatData{PrevMonth: 42.0, CurrMonth: 43.0},
		price: &provider.PriceData{PrevMonth: 15.0, CurrMonth: 16.0},
	}
	// Keep the reading day off today's date so the running cycle always has
	// elapsed days.
	readingDay := 15
	if time.Now().Day() == readingDay {
		readingDay = 16
	}
	srv := &Server{
		Store: store,
		Coord: coordinator.New(store, gw, nil, nil),
		Meter: meter.New(store),
		Calc:  billing.Calculator{ReadingDay: readingDay, BaseFee: 1250},
	}
	return srv, store
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, path := range []string{"/healthz", "/livez", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestBillEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	// No meter reading yet.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bill", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("bill without reading: status %d", rec.Code)
	}

	// Submit readings and populate factors.
	putJSON(t, h, "/api/meter", `{"current_volume": 100}`)
	putJSON(t, h, "/api/meter", `{"current_volume": 130}`)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bill", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("bill: status %d body %s", rec.Code, rec.Body.String())
	}
	var bill billing.BillResult
	if err := json.NewDecoder(rec.Body).Decode(&bill); err != nil {
		t.Fatalf("decode bill: %v", err)
	}
	if bill.UsageVolume != 30 {
		t.Errorf("usage: %v", bill.UsageVolume)
	}
	if bill.TaxedAmount <= 0 {
		t.Errorf("taxed amount: %d", bill.TaxedAmount)
	}
}

func TestBillWithoutFactorsIsUnavailable(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	putJSON(t, h, "/api/meter", `{"current_volume": 100}`)
	putJSON(t, h, "/api/meter", `{"current_volume": 130}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bill", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("bill without factors: status %d", rec.Code)
	}
}

func TestMeterEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meter", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("meter before reading: status %d", rec.Code)
	}

	putJSON(t, h, "/api/meter", `{"current_volume": 100}`)

	// Below cycle start is rejected.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/meter", strings.NewReader(`{"current_volume": 99}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("regressing reading: status %d", rec.Code)
	}
}

func TestSnapshotFieldEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/snapshot/curr_month_heat", strings.NewReader(`{"value": 43.2}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("set field: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	var snap coordinator.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.CurrMonthHeat.Valid || snap.CurrMonthHeat.Value != 43.2 {
		t.Errorf("field not stored: %+v", snap.CurrMonthHeat)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/snapshot/bogus", strings.NewReader(`{"value": 1}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status %d", rec.Code)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("providers: status %d", rec.Code)
	}
	var list []struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	keys := make(map[string]bool)
	for _, p := range list {
		keys[p.Key] = true
	}
	if !keys["manual"] || !keys["seoul_gas"] {
		t.Errorf("registered gateways missing from list: %v", keys)
	}
}

func TestInvoiceEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoice", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("invoice before any rollover: status %d", rec.Code)
	}

	payload, _ := json.Marshal(billing.BillResult{UsageVolume: 30, TaxedAmount: 21963})
	if err := store.SaveInvoice(context.Background(), storage.Invoice{Period: "2024-06", Payload: payload}); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("invoice: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "2024-06") {
		t.Errorf("invoice body: %s", rec.Body.String())
	}
}

func TestSettingsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/settings/refresh_interval_seconds", strings.NewReader(`{"value": "600"}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put setting: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings/refresh_interval_seconds", nil))
	if !strings.Contains(rec.Body.String(), "600") {
		t.Errorf("get setting: %s", rec.Body.String())
	}
}

func putJSON(t *testing.T, h http.Handler, path, body string) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT %s: status %d body %s", path, rec.Code, rec.Body.String())
	}
}
