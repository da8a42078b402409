package meter

import (
	"context"
	"errors"
	"testing"
	"time"

	"citygasd/internal/storage"
)

func TestReadBeforeAnyReading(t *testing.T) {
	c := New(storage.NewMemory())
	_, err := c.Read(context.Background())
	if !errors.Is(err, ErrNoReading) {
		t.Fatalf("expected ErrNoReading, got %v", err)
	}
}

func TestSetCurrentOpensFirstCycle(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMemory())

	if err := c.SetCurrent(ctx, 123.456); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	m, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.CurrentVolume != 123.456 || m.StartVolume != 123.456 {
		t.Errorf("first reading should open the cycle: %+v", m)
	}
}

func TestSetCurrentRejectsBelowStart(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMemory())

	if err := c.SetCurrent(ctx, 100); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := c.SetCurrent(ctx, 99.9); err == nil {
		t.Error("expected error for reading below cycle start")
	}
	if err := c.SetCurrent(ctx, 130.5); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
}

func TestShiftCycle(t *testing.T) {
	now := time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)
	m := storage.MeterReading{StartVolume: 100, CurrentVolume: 130.7}

	shifted := ShiftCycle(m, 130, now)
	if shifted.PrevStartVolume != 100 || shifted.PrevEndVolume != 130.7 {
		t.Errorf("previous cycle pair: %+v", shifted)
	}
	if shifted.StartVolume != 130 {
		t.Errorf("new cycle start: want 130 got %v", shifted.StartVolume)
	}
	if shifted.CurrentVolume != 130.7 {
		t.Errorf("live counter must survive rollover: %v", shifted.CurrentVolume)
	}
	if !shifted.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt: %v", shifted.UpdatedAt)
	}
	if m.PrevEndVolume != 0 {
		t.Error("ShiftCycle must not mutate its input")
	}
}
