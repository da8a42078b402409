package billing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TaxRate is the fixed proportional tax applied to every bill (10% VAT).
const TaxRate = 1.10

var (
	// ErrNegativeUsage means the current meter value is below the cycle
	// start value. This is a data-integrity violation and is never clamped.
	ErrNegativeUsage = errors.New("billing: current reading below start reading")

	// ErrMissingFactors means a heat-content or unit-price value required
	// for the computation is absent or non-positive.
	ErrMissingFactors = errors.New("billing: missing or non-positive factors")
)

// Reading is a pair of meter counter values bounding a metering period.
type Reading struct {
	StartVolume   float64 `json:"start_volume"`   // m³
	CurrentVolume float64 `json:"current_volume"` // m³
}

// PeriodFactors carries the monthly published heat content and unit price.
type PeriodFactors struct {
	HeatContent float64 `json:"heat_content"` // MJ/Nm³
	UnitPrice   float64 `json:"unit_price"`   // currency per MJ
}

func (f PeriodFactors) valid() bool {
	return f.HeatContent > 0 && f.UnitPrice > 0
}

// BillResult is the fee breakdown for one metering period. It is ephemeral:
// recomputed on every request, persisted only when a cycle closes.
type BillResult struct {
	UsageVolume float64 `json:"usage_volume"` // m³
	EnergyMJ    float64 `json:"energy_mj"`
	BaseAmount  float64 `json:"base_amount"`
	TaxedAmount int64   `json:"taxed_amount"` // whole currency units

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	DaysPrev    int       `json:"days_prev"`
	DaysCurr    int       `json:"days_curr"`
	PrevAmount  float64   `json:"prev_amount"`
	CurrAmount  float64   `json:"curr_amount"`
	Combined    bool      `json:"combined,omitempty"`
}

// Compute produces the fee for the usage between reading.StartVolume and
// reading.CurrentVolume over periodStart..periodEnd. If the period crosses
// rateChange, usage is split proportionally by elapsed calendar days on each
// side and each side is billed with its own factors; otherwise the whole
// usage is billed at the single applicable factor set.
func Compute(reading Reading, prev, curr PeriodFactors, periodStart, periodEnd, rateChange time.Time) (BillResult, error) {
	usage := reading.CurrentVolume - reading.StartVolume
	if usage < 0 {
		return BillResult{}, fmt.Errorf("%w: start=%.3f current=%.3f",
			ErrNegativeUsage, reading.StartVolume, reading.CurrentVolume)
	}
	return computeUsage(usage, prev, curr, periodStart, periodEnd, rateChange)
}

func computeUsage(usage float64, prev, curr PeriodFactors, periodStart, periodEnd, rateChange time.Time) (BillResult, error) {
	start := dateOnly(periodStart)
	end := dateOnly(periodEnd)
	change := dateOnly(rateChange)

	res := BillResult{
		UsageVolume: usage,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	crosses := start.Before(change) && change.Before(end)
	if !crosses {
		// Whole period on one side of the boundary.
		f := curr
		if !end.After(change) {
			f = prev
		}
		if !f.valid() {
			return BillResult{}, fmt.Errorf("%w: heat=%.3f price=%.4f",
				ErrMissingFactors, f.HeatContent, f.UnitPrice)
		}
		res.EnergyMJ = usage * f.HeatContent
		res.BaseAmount = res.EnergyMJ * f.UnitPrice
		if !end.After(change) {
			res.DaysPrev = daysBetween(start, end)
			res.PrevAmount = res.BaseAmount
		} else {
			res.DaysCurr = daysBetween(start, end)
			res.CurrAmount = res.BaseAmount
		}
		res.TaxedAmount = Tax(res.BaseAmount)
		return res, nil
	}

	if !prev.valid() || !curr.valid() {
		return BillResult{}, fmt.Errorf("%w: prev={%.3f %.4f} curr={%.3f %.4f}",
			ErrMissingFactors, prev.HeatContent, prev.UnitPrice, curr.HeatContent, curr.UnitPrice)
	}

	daysPrev := daysBetween(start, change)
	daysCurr := daysBetween(change, end)
	total := daysPrev + daysCurr

	prevUsage := usage * float64(daysPrev) / float64(total)
	currUsage := usage * float64(daysCurr) / float64(total)

	prevEnergy := prevUsage * prev.HeatContent
	currEnergy := currUsage * curr.HeatContent

	res.DaysPrev = daysPrev
	res.DaysCurr = daysCurr
	res.PrevAmount = prevEnergy * prev.UnitPrice
	res.CurrAmount = currEnergy * curr.UnitPrice
	res.EnergyMJ = prevEnergy + currEnergy
	res.BaseAmount = res.PrevAmount + res.CurrAmount
	res.TaxedAmount = Tax(res.BaseAmount)
	return res, nil
}

// CombineBimonthly sums two independently computed cycle results into one
// invoice. The amounts are added, never recomputed from pooled volume, since
// heat content and price may differ between the two cycles.
func CombineBimonthly(prev, curr BillResult) BillResult {
	out := BillResult{
		UsageVolume: prev.UsageVolume + curr.UsageVolume,
		EnergyMJ:    prev.EnergyMJ + curr.EnergyMJ,
		BaseAmount:  prev.BaseAmount + curr.BaseAmount,
		PeriodStart: prev.PeriodStart,
		PeriodEnd:   curr.PeriodEnd,
		DaysPrev:    prev.DaysPrev + prev.DaysCurr,
		DaysCurr:    curr.DaysPrev + curr.DaysCurr,
		PrevAmount:  prev.BaseAmount,
		CurrAmount:  curr.BaseAmount,
		Combined:    true,
	}
	if prev.PeriodStart.IsZero() {
		out.PeriodStart = curr.PeriodStart
	}
	out.TaxedAmount = Tax(out.BaseAmount)
	return out
}

// Tax applies the fixed tax and rounds half away from zero to a whole
// currency unit.
func Tax(base float64) int64 {
	return int64(math.Round(base * TaxRate))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b. Both dates are normalized to
// UTC midnight first so a DST transition inside the period cannot skew the
// count.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
