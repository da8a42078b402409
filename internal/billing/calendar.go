package billing

import "time"

// MonthEndDay selects "last day of the month" as the reading day.
const MonthEndDay = 0

// Bimonthly cycle settings. When enabled, the invoice for a billing month is
// the sum of the closed previous cycle and the running one.
const (
	BimonthlyDisabled = "disabled"
	BimonthlyOdd      = "odd"
	BimonthlyEven     = "even"
)

// Calculator binds the pure fee computation to a household's billing
// parameters: the monthly reading day, the fixed base fee charged per cycle
// and the temperature/pressure correction factor applied to metered volume.
type Calculator struct {
	ReadingDay       int
	BaseFee          float64
	CorrectionFactor float64
	BimonthlyCycle   string
}

// LastReadingDate returns the reading day that opened the cycle containing
// today. ReadingDay 0 means the meter is read on the last day of each month.
func (c Calculator) LastReadingDate(today time.Time) time.Time {
	today = dateOnly(today)
	if c.ReadingDay == MonthEndDay {
		last := lastDayOfMonth(today)
		if today.Day() == last {
			return today
		}
		prev := today.AddDate(0, -1, -today.Day()+1) // first day of previous month
		return time.Date(prev.Year(), prev.Month(), lastDayOfMonth(prev), 0, 0, 0, 0, today.Location())
	}
	day := c.clampedDay(today.Year(), today.Month())
	if today.Day() >= day {
		return time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, today.Location())
	}
	prev := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, -1, 0)
	return time.Date(prev.Year(), prev.Month(), c.clampedDay(prev.Year(), prev.Month()), 0, 0, 0, 0, today.Location())
}

// NextReadingDate returns the reading day one cycle after start.
func (c Calculator) NextReadingDate(start time.Time) time.Time {
	next := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location()).AddDate(0, 1, 0)
	if c.ReadingDay == MonthEndDay {
		return time.Date(next.Year(), next.Month(), lastDayOfMonth(next), 0, 0, 0, 0, start.Location())
	}
	return time.Date(next.Year(), next.Month(), c.clampedDay(next.Year(), next.Month()), 0, 0, 0, 0, start.Location())
}

// IsBillingMonth reports whether a bimonthly household invoices in today's
// month.
func (c Calculator) IsBillingMonth(today time.Time) bool {
	switch c.BimonthlyCycle {
	case BimonthlyOdd:
		return int(today.Month())%2 == 1
	case BimonthlyEven:
		return int(today.Month())%2 == 0
	default:
		return false
	}
}

// Bill computes the running fee for the cycle containing today. The metered
// usage is scaled by the correction factor, split across the month boundary
// where factor sets change, and topped with the base fee before tax.
func (c Calculator) Bill(reading Reading, prev, curr PeriodFactors, today time.Time) (BillResult, error) {
	usage := reading.CurrentVolume - reading.StartVolume
	if usage < 0 {
		return BillResult{}, ErrNegativeUsage
	}
	corrected := usage * c.correction()

	start := c.LastReadingDate(today)
	end := dateOnly(today)
	boundary := firstOfMonth(end)

	if !end.After(start) {
		// Cycle opened today; only the base fee applies.
		res := BillResult{PeriodStart: start, PeriodEnd: end, BaseAmount: c.BaseFee}
		res.TaxedAmount = Tax(res.BaseAmount)
		return res, nil
	}

	res, err := computeUsage(corrected, prev, curr, start, end, boundary)
	if err != nil {
		return BillResult{}, err
	}
	res.UsageVolume = usage
	res.BaseAmount += c.BaseFee
	res.TaxedAmount = Tax(res.BaseAmount)
	return res, nil
}

// CloseBill computes the final fee for the cycle ending on closeDate. Unlike
// Bill, the period is anchored on the previous reading day even when
// closeDate itself is a reading day.
func (c Calculator) CloseBill(reading Reading, prev, curr PeriodFactors, closeDate time.Time) (BillResult, error) {
	usage := reading.CurrentVolume - reading.StartVolume
	if usage < 0 {
		return BillResult{}, ErrNegativeUsage
	}
	end := dateOnly(closeDate)
	start := c.LastReadingDate(end.AddDate(0, 0, -1))
	boundary := firstOfMonth(end)

	res, err := computeUsage(usage*c.correction(), prev, curr, start, end, boundary)
	if err != nil {
		return BillResult{}, err
	}
	res.UsageVolume = usage
	res.BaseAmount += c.BaseFee
	res.TaxedAmount = Tax(res.BaseAmount)
	return res, nil
}

// EstimateUsage projects the metered usage linearly over the whole cycle.
func (c Calculator) EstimateUsage(reading Reading, today time.Time) (float64, error) {
	usage := reading.CurrentVolume - reading.StartVolume
	if usage < 0 {
		return 0, ErrNegativeUsage
	}
	start := c.LastReadingDate(today)
	end := c.NextReadingDate(start)

	passed := daysBetween(start, dateOnly(today))
	total := daysBetween(start, end)
	if passed <= 0 || total <= 0 {
		return usage, nil
	}
	return usage / float64(passed) * float64(total), nil
}

// EstimateBill computes the projected fee for the full cycle from the
// current usage trend.
func (c Calculator) EstimateBill(reading Reading, prev, curr PeriodFactors, today time.Time) (BillResult, error) {
	estimated, err := c.EstimateUsage(reading, today)
	if err != nil {
		return BillResult{}, err
	}
	start := c.LastReadingDate(today)
	end := c.NextReadingDate(start)
	boundary := firstOfMonth(end)

	res, err := computeUsage(estimated*c.correction(), prev, curr, start, end, boundary)
	if err != nil {
		return BillResult{}, err
	}
	res.UsageVolume = estimated
	res.BaseAmount += c.BaseFee
	res.TaxedAmount = Tax(res.BaseAmount)
	return res, nil
}

func (c Calculator) correction() float64 {
	if c.CorrectionFactor <= 0 {
		return 1.0
	}
	return c.CorrectionFactor
}

// clampedDay keeps an explicit reading day inside short months.
func (c Calculator) clampedDay(year int, month time.Month) int {
	last := lastDayOfMonth(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	if c.ReadingDay > last {
		return last
	}
	return c.ReadingDay
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, -1).Day()
}
