// Package coordinator keeps the snapshot of published billing factors fresh.
// It fetches heat and price data from the configured supplier gateway, merges
// whatever arrived into storage field by field, and drives the reading-cycle
// state machine after every merge.
package coordinator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"citygasd/internal/alerting"
	"citygasd/internal/billing"
	"citygasd/internal/cycle"
	"citygasd/internal/metrics"
	"citygasd/internal/provider"
	"citygasd/internal/storage"
)

// FieldValue is one snapshot field as served to clients. Valid is false until
// a value has been confirmed at least once.
type FieldValue struct {
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	Valid     bool      `json:"valid"`
}

// Snapshot is the full set of billing factors currently held.
type Snapshot struct {
	PrevMonthHeat  FieldValue `json:"prev_month_heat"`
	CurrMonthHeat  FieldValue `json:"curr_month_heat"`
	PrevMonthPrice FieldValue `json:"prev_month_price"`
	CurrMonthPrice FieldValue `json:"curr_month_price"`
}

// Refresh outcome statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Outcome reports what one refresh attempt did.
type Outcome struct {
	Status        string    `json:"status"`
	UpdatedFields []string  `json:"updated_fields"`
	HeatError     string    `json:"heat_error,omitempty"`
	PriceError    string    `json:"price_error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
}

// Coordinator serializes refreshes against one supplier gateway. Concurrent
// callers coalesce onto the in-flight refresh instead of stacking fetches.
type Coordinator struct {
	store   storage.Storage
	gateway provider.Gateway
	cycle   *cycle.StateMachine
	alerter *alerting.Alerter

	mu                  sync.Mutex
	inflight            *call
	consecutiveFailures int
}

type call struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// New builds a Coordinator. The cycle machine and alerter are optional.
func New(store storage.Storage, gw provider.Gateway, sm *cycle.StateMachine, al *alerting.Alerter) *Coordinator {
	return &Coordinator{store: store, gateway: gw, cycle: sm, alerter: al}
}

// Snapshot loads the current factor set from storage.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	for _, f := range []struct {
		key string
		dst *FieldValue
	}{
		{storage.FieldPrevMonthHeat, &snap.PrevMonthHeat},
		{storage.FieldCurrMonthHeat, &snap.CurrMonthHeat},
		{storage.FieldPrevMonthPrice, &snap.PrevMonthPrice},
		{storage.FieldCurrMonthPrice, &snap.CurrMonthPrice},
	} {
		row, err := c.store.GetField(ctx, f.key)
		if err != nil {
			return Snapshot{}, err
		}
		if row != nil {
			*f.dst = FieldValue{Value: row.Value, UpdatedAt: row.UpdatedAt, Valid: true}
		}
	}
	return snap, nil
}

// Factors converts the snapshot into the two factor sets used by billing.
// Missing fields come out zero and are rejected downstream.
func (c *Coordinator) Factors(ctx context.Context) (prev, curr billing.PeriodFactors, err error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return prev, curr, err
	}
	prev = billing.PeriodFactors{HeatContent: snap.PrevMonthHeat.Value, UnitPrice: snap.PrevMonthPrice.Value}
	curr = billing.PeriodFactors{HeatContent: snap.CurrMonthHeat.Value, UnitPrice: snap.CurrMonthPrice.Value}
	return prev, curr, nil
}

// SetField overwrites one snapshot field. This is the manual-entry path.
func (c *Coordinator) SetField(ctx context.Context, key string, value float64) error {
	switch key {
	case storage.FieldPrevMonthHeat, storage.FieldCurrMonthHeat,
		storage.FieldPrevMonthPrice, storage.FieldCurrMonthPrice:
	default:
		return errors.New("coordinator: unknown snapshot field " + key)
	}
	return c.store.SaveField(ctx, storage.SnapshotField{Key: key, Value: value, UpdatedAt: time.Now()})
}

// Refresh runs one refresh, or joins the one already in flight. All coalesced
// callers receive the same outcome.
func (c *Coordinator) Refresh(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.inflight != nil {
		cl := c.inflight
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.outcome, cl.err
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight = cl
	c.mu.Unlock()

	cl.outcome, cl.err = c.doRefresh(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(cl.done)

	return cl.outcome, cl.err
}

func (c *Coordinator) doRefresh(ctx context.Context) (Outcome, error) {
	started := time.Now()
	out := Outcome{StartedAt: started}

	var (
		wg       sync.WaitGroup
		heat     *provider.HeatData
		heatErr  error
		price    *provider.PriceData
		priceErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		heat, heatErr = c.gateway.FetchHeatData(ctx)
	}()
	go func() {
		defer wg.Done()
		price, priceErr = c.gateway.FetchPriceData(ctx)
	}()
	wg.Wait()

	now := time.Now()

	// Merge field by field. An absent result or a failed fetch leaves the
	// stored values untouched.
	if heatErr != nil {
		out.HeatError = heatErr.Error()
		metrics.FetchErrorsTotal.WithLabelValues(c.gateway.ID(), "heat").Inc()
		log.Printf("coordinator: heat fetch failed: %v", heatErr)
	} else if heat != nil {
		if err := c.saveField(ctx, storage.FieldPrevMonthHeat, heat.PrevMonth, now, &out); err != nil {
			return out, err
		}
		if err := c.saveField(ctx, storage.FieldCurrMonthHeat, heat.CurrMonth, now, &out); err != nil {
			return out, err
		}
	}
	if priceErr != nil {
		out.PriceError = priceErr.Error()
		metrics.FetchErrorsTotal.WithLabelValues(c.gateway.ID(), "price").Inc()
		log.Printf("coordinator: price fetch failed: %v", priceErr)
	} else if price != nil {
		if err := c.saveField(ctx, storage.FieldPrevMonthPrice, price.PrevMonth, now, &out); err != nil {
			return out, err
		}
		if err := c.saveField(ctx, storage.FieldCurrMonthPrice, price.CurrMonth, now, &out); err != nil {
			return out, err
		}
	}

	switch {
	case heatErr != nil && priceErr != nil:
		out.Status = StatusFailed
	case heatErr != nil || priceErr != nil:
		out.Status = StatusPartial
	default:
		out.Status = StatusSuccess
	}
	out.DurationMs = time.Since(started).Milliseconds()

	metrics.RefreshTotal.WithLabelValues(c.gateway.ID(), out.Status).Inc()
	metrics.RefreshDurationSeconds.WithLabelValues(c.gateway.ID()).Observe(time.Since(started).Seconds())
	c.updateGauges(ctx)

	c.trackFailures(ctx, out, time.Since(started))

	// Cycle ticks on every refresh so the rollover window is honored even
	// while the supplier is down.
	if c.cycle != nil {
		prev, curr, err := c.Factors(ctx)
		if err != nil {
			log.Printf("coordinator: load factors for cycle tick: %v", err)
		} else if err := c.cycle.Tick(ctx, now, prev, curr); err != nil {
			metrics.RolloverFailuresTotal.Inc()
			log.Printf("coordinator: cycle tick: %v", err)
		}
	}

	return out, nil
}

func (c *Coordinator) saveField(ctx context.Context, key string, value float64, now time.Time, out *Outcome) error {
	if err := c.store.SaveField(ctx, storage.SnapshotField{Key: key, Value: value, UpdatedAt: now}); err != nil {
		return err
	}
	out.UpdatedFields = append(out.UpdatedFields, key)
	return nil
}

func (c *Coordinator) updateGauges(ctx context.Context) {
	fields, err := c.store.ListFields(ctx)
	if err != nil {
		return
	}
	now := time.Now()
	for _, f := range fields {
		metrics.SnapshotFieldValue.WithLabelValues(f.Key).Set(f.Value)
		metrics.SnapshotFieldAge.WithLabelValues(f.Key).Set(now.Sub(f.UpdatedAt).Seconds())
	}
}

func (c *Coordinator) trackFailures(ctx context.Context, out Outcome, dur time.Duration) {
	if out.Status != StatusFailed {
		c.consecutiveFailures = 0
		return
	}
	c.consecutiveFailures++
	if c.alerter == nil {
		return
	}
	alert := alerting.RefreshAlert{
		Provider:            c.gateway.ID(),
		ConsecutiveFailures: c.consecutiveFailures,
		Duration:            dur,
		Timestamp:           time.Now(),
	}
	if out.HeatError != "" {
		alert.Failures = append(alert.Failures, alerting.FetchFailure{Kind: "heat", Error: out.HeatError})
	}
	if out.PriceError != "" {
		alert.Failures = append(alert.Failures, alerting.FetchFailure{Kind: "price", Error: out.PriceError})
	}
	if err := c.alerter.SendRefreshAlert(ctx, alert); err != nil {
		log.Printf("coordinator: send alert: %v", err)
	}
}
