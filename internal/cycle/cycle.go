// Package cycle drives the monthly meter-reading rollover. A cycle closes on
// the household's reading day at the configured local time; the closing bill
// is archived as an invoice and the meter slots shift to the next cycle.
package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"citygasd/internal/billing"
	"citygasd/internal/meter"
	"citygasd/internal/storage"
)

// ErrRolloverAborted wraps any failure inside a rollover attempt. The period
// marker is not advanced, so the next tick inside the window retries.
var ErrRolloverAborted = errors.New("cycle: rollover aborted")

// StateMachine decides when the reading-day rollover is due and performs it
// atomically. A missed window is never backfilled: once the reading day has
// passed, the rollover waits for the next month's window.
type StateMachine struct {
	store storage.Storage
	meter meter.Control
	calc  billing.Calculator

	readingHour   int
	readingMinute int

	// OnInvoice, when set, is called after a cycle closes with the
	// archived invoice. Failures there never abort the rollover.
	OnInvoice func(ctx context.Context, inv storage.Invoice)
}

// New returns a StateMachine closing cycles at hour:minute on the
// calculator's reading day.
func New(store storage.Storage, m meter.Control, calc billing.Calculator, hour, minute int) *StateMachine {
	return &StateMachine{
		store:         store,
		meter:         m,
		calc:          calc,
		readingHour:   hour,
		readingMinute: minute,
	}
}

// Due reports whether a rollover should run at the given instant.
func (s *StateMachine) Due(ctx context.Context, now time.Time) (bool, error) {
	if now.Day() != s.readingDayFor(now) {
		return false, nil
	}
	if now.Hour() < s.readingHour ||
		(now.Hour() == s.readingHour && now.Minute() < s.readingMinute) {
		return false, nil
	}
	state, err := s.store.GetCycleState(ctx)
	if err != nil {
		return false, err
	}
	if state != nil && state.LastRolloverPeriod == periodOf(now) {
		return false, nil
	}
	return true, nil
}

// Tick runs one due-check and, when due, performs the rollover with the
// given billing factors. Factors may be stale or invalid; the rollover is
// then aborted and retried on the next tick inside the window.
func (s *StateMachine) Tick(ctx context.Context, now time.Time, prev, curr billing.PeriodFactors) error {
	due, err := s.Due(ctx, now)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}
	return s.rollover(ctx, now, prev, curr)
}

func (s *StateMachine) rollover(ctx context.Context, now time.Time, prev, curr billing.PeriodFactors) error {
	reading, err := s.meter.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRolloverAborted, err)
	}

	bill, err := s.calc.CloseBill(billing.Reading{
		StartVolume:   reading.StartVolume,
		CurrentVolume: reading.CurrentVolume,
	}, prev, curr, now)
	if err != nil {
		return fmt.Errorf("%w: closing bill: %v", ErrRolloverAborted, err)
	}

	payload, err := json.Marshal(bill)
	if err != nil {
		return fmt.Errorf("%w: encode invoice: %v", ErrRolloverAborted, err)
	}
	inv := storage.Invoice{Period: periodOf(now), Payload: payload, ClosedAt: now}

	// The next cycle opens at the whole-m³ floor of the live counter. The
	// invoice, the shifted slots and the period marker land in one storage
	// step so a failure here leaves the running cycle untouched and the
	// retry cannot shift the slots twice.
	shifted := meter.ShiftCycle(reading, math.Floor(reading.CurrentVolume), now)
	if err := s.store.SaveRollover(ctx, inv, shifted, storage.CycleState{
		LastRolloverPeriod: periodOf(now),
		UpdatedAt:          now,
	}); err != nil {
		return fmt.Errorf("%w: persist rollover: %v", ErrRolloverAborted, err)
	}

	log.Printf("cycle: rolled over period=%s usage=%.3f taxed=%d",
		inv.Period, bill.UsageVolume, bill.TaxedAmount)

	if s.OnInvoice != nil {
		s.OnInvoice(ctx, inv)
	}
	return nil
}

// readingDayFor resolves the effective reading day inside now's month,
// honoring the month-end setting and short months.
func (s *StateMachine) readingDayFor(now time.Time) int {
	last := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, 1, -1).Day()
	if s.calc.ReadingDay == billing.MonthEndDay || s.calc.ReadingDay > last {
		return last
	}
	return s.calc.ReadingDay
}

func periodOf(t time.Time) string {
	return t.Format("2006-01")
}
