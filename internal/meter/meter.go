// Package meter exposes the household meter slots: the live counter updated
// by the user and the cycle bookkeeping values written only at rollover.
package meter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"citygasd/internal/storage"
)

// ErrNoReading means no meter value has been recorded yet. The live counter
// is only ever written through the API, so a fresh installation stays in this
// state until the user submits a first reading.
var ErrNoReading = errors.New("meter: no reading recorded")

// Control reads and updates the meter slots.
type Control interface {
	// Read returns all meter slots.
	Read(ctx context.Context) (storage.MeterReading, error)

	// SetCurrent updates the live counter. The value must not fall below
	// the cycle start.
	SetCurrent(ctx context.Context, value float64) error
}

type control struct {
	store storage.Storage
}

// New returns a storage-backed Control.
func New(store storage.Storage) Control {
	return &control{store: store}
}

func (c *control) Read(ctx context.Context) (storage.MeterReading, error) {
	m, err := c.store.GetMeter(ctx)
	if err != nil {
		return storage.MeterReading{}, err
	}
	if m == nil {
		return storage.MeterReading{}, ErrNoReading
	}
	return *m, nil
}

func (c *control) SetCurrent(ctx context.Context, value float64) error {
	m, err := c.store.GetMeter(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	if m == nil {
		// First reading ever also opens the first cycle.
		m = &storage.MeterReading{StartVolume: value}
	}
	if value < m.StartVolume {
		return fmt.Errorf("meter: reading %.3f below cycle start %.3f", value, m.StartVolume)
	}
	m.CurrentVolume = value
	m.CurrentUpdatedAt = now
	m.UpdatedAt = now
	return c.store.SaveMeter(ctx, *m)
}

// ShiftCycle returns the slots as they stand after a rollover: the closing
// cycle's bounds move to the previous-cycle pair and newStart opens the next
// cycle. The caller persists the result, typically alongside the archived
// invoice in one storage step.
func ShiftCycle(m storage.MeterReading, newStart float64, now time.Time) storage.MeterReading {
	m.PrevStartVolume = m.StartVolume
	m.PrevEndVolume = m.CurrentVolume
	m.StartVolume = newStart
	m.UpdatedAt = now
	return m
}
