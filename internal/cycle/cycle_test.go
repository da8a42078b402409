package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"citygasd/internal/billing"
	"citygasd/internal/meter"
	"citygasd/internal/storage"
)

var (
	goodPrev = billing.PeriodFactors{HeatContent: 42.0, UnitPrice: 15.0}
	goodCurr = billing.PeriodFactors{HeatContent: 43.0, UnitPrice: 16.0}
)

func newMachine(t *testing.T, store storage.Storage) (*StateMachine, meter.Control) {
	t.Helper()
	mc := meter.New(store)
	calc := billing.Calculator{ReadingDay: 20, BaseFee: 1250}
	return New(store, mc, calc, 9, 0), mc
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDueWindow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sm, _ := newMachine(t, store)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"wrong day", at(2024, 6, 19, 10, 0), false},
		{"reading day before time", at(2024, 6, 20, 8, 59), false},
		{"reading day at time", at(2024, 6, 20, 9, 0), true},
		{"reading day after time", at(2024, 6, 20, 23, 0), true},
		{"day after window", at(2024, 6, 21, 10, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due, err := sm.Due(ctx, tc.now)
			if err != nil {
				t.Fatalf("Due: %v", err)
			}
			if due != tc.want {
				t.Errorf("want %v got %v", tc.want, due)
			}
		})
	}
}

func TestDueHonorsRolloverMarker(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sm, _ := newMachine(t, store)

	if err := store.SaveCycleState(ctx, storage.CycleState{LastRolloverPeriod: "2024-06"}); err != nil {
		t.Fatal(err)
	}
	due, err := sm.Due(ctx, at(2024, 6, 20, 10, 0))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if due {
		t.Error("already rolled over this period, must not be due")
	}

	due, err = sm.Due(ctx, at(2024, 7, 20, 10, 0))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if !due {
		t.Error("next month's window should be due again")
	}
}

func TestTickRollsOverOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sm, mc := newMachine(t, store)

	if err := mc.SetCurrent(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if err := mc.SetCurrent(ctx, 130.7); err != nil {
		t.Fatal(err)
	}

	var invoices int
	sm.OnInvoice = func(ctx context.Context, inv storage.Invoice) { invoices++ }

	if err := sm.Tick(ctx, at(2024, 6, 20, 9, 30), goodPrev, goodCurr); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	m, err := mc.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.PrevStartVolume != 100 || m.PrevEndVolume != 130.7 {
		t.Errorf("previous cycle pair: %+v", m)
	}
	if m.StartVolume != 130 {
		t.Errorf("new start should be the floored counter, got %v", m.StartVolume)
	}

	inv, err := store.GetLastInvoice(ctx)
	if err != nil || inv == nil {
		t.Fatalf("invoice not archived: %v %v", inv, err)
	}
	if inv.Period != "2024-06" {
		t.Errorf("invoice period: %s", inv.Period)
	}
	if invoices != 1 {
		t.Errorf("OnInvoice calls: %d", invoices)
	}

	// A later tick inside the same window is a no-op.
	if err := sm.Tick(ctx, at(2024, 6, 20, 12, 0), goodPrev, goodCurr); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	m, _ = mc.Read(ctx)
	if m.StartVolume != 130 || m.PrevEndVolume != 130.7 {
		t.Errorf("second tick must not touch the meter: %+v", m)
	}
}

func TestTickAbortsAndRetries(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sm, mc := newMachine(t, store)

	if err := mc.SetCurrent(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if err := mc.SetCurrent(ctx, 130); err != nil {
		t.Fatal(err)
	}

	// Missing factors abort the rollover without advancing the marker.
	err := sm.Tick(ctx, at(2024, 6, 20, 9, 30), billing.PeriodFactors{}, billing.PeriodFactors{})
	if !errors.Is(err, ErrRolloverAborted) {
		t.Fatalf("expected ErrRolloverAborted, got %v", err)
	}
	state, _ := store.GetCycleState(ctx)
	if state != nil && state.LastRolloverPeriod == "2024-06" {
		t.Fatal("aborted rollover must not mark the period")
	}

	// Retry inside the window with usable factors succeeds.
	if err := sm.Tick(ctx, at(2024, 6, 20, 10, 0), goodPrev, goodCurr); err != nil {
		t.Fatalf("retry Tick: %v", err)
	}
	state, _ = store.GetCycleState(ctx)
	if state == nil || state.LastRolloverPeriod != "2024-06" {
		t.Errorf("period marker after retry: %+v", state)
	}
}

// flakyStore fails the first SaveRollover and counts the successful ones.
type flakyStore struct {
	storage.Storage
	failures  int
	rollovers int
}

func (f *flakyStore) SaveRollover(ctx context.Context, inv storage.Invoice, m storage.MeterReading, cs storage.CycleState) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	f.rollovers++
	return f.Storage.SaveRollover(ctx, inv, m, cs)
}

func TestTickRetryAfterStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Storage: storage.NewMemory(), failures: 1}
	sm, mc := newMachine(t, store)

	if err := mc.SetCurrent(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if err := mc.SetCurrent(ctx, 130.7); err != nil {
		t.Fatal(err)
	}

	// A storage failure aborts the rollover without touching anything.
	err := sm.Tick(ctx, at(2024, 6, 20, 9, 30), goodPrev, goodCurr)
	if !errors.Is(err, ErrRolloverAborted) {
		t.Fatalf("expected ErrRolloverAborted, got %v", err)
	}
	m, err := mc.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.StartVolume != 100 || m.PrevEndVolume != 0 {
		t.Errorf("aborted rollover must leave the meter untouched: %+v", m)
	}
	if inv, _ := store.GetLastInvoice(ctx); inv != nil {
		t.Error("aborted rollover must not archive an invoice")
	}

	// The retry inside the window closes the cycle exactly once.
	if err := sm.Tick(ctx, at(2024, 6, 20, 10, 0), goodPrev, goodCurr); err != nil {
		t.Fatalf("retry Tick: %v", err)
	}
	m, _ = mc.Read(ctx)
	if m.PrevStartVolume != 100 || m.PrevEndVolume != 130.7 || m.StartVolume != 130 {
		t.Errorf("retry must apply the shift exactly once: %+v", m)
	}
	if store.rollovers != 1 {
		t.Errorf("rollovers persisted: want 1 got %d", store.rollovers)
	}
}

func TestMissedWindowIsNotBackfilled(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sm, mc := newMachine(t, store)

	if err := mc.SetCurrent(ctx, 100); err != nil {
		t.Fatal(err)
	}

	// The process was down for the whole reading day; the day after, no
	// rollover happens.
	if err := sm.Tick(ctx, at(2024, 6, 21, 10, 0), goodPrev, goodCurr); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if inv, _ := store.GetLastInvoice(ctx); inv != nil {
		t.Error("missed window must not be backfilled")
	}
}

func TestMonthEndReadingDay(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	mc := meter.New(store)
	calc := billing.Calculator{ReadingDay: billing.MonthEndDay, BaseFee: 1250}
	sm := New(store, mc, calc, 9, 0)

	due, err := sm.Due(ctx, at(2024, 2, 29, 10, 0))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if !due {
		t.Error("leap-year February should read on the 29th")
	}
	due, _ = sm.Due(ctx, at(2024, 2, 28, 10, 0))
	if due {
		t.Error("the 28th is not month end in a leap year")
	}
}
