package billing

import (
	"math"
	"testing"
	"time"
)

func TestLastReadingDate(t *testing.T) {
	cases := []struct {
		name       string
		readingDay int
		today      time.Time
		want       time.Time
	}{
		{"before reading day", 15, date(2024, 3, 10), date(2024, 2, 15)},
		{"on reading day", 15, date(2024, 3, 15), date(2024, 3, 15)},
		{"after reading day", 15, date(2024, 3, 20), date(2024, 3, 15)},
		{"month end, mid month", MonthEndDay, date(2024, 3, 5), date(2024, 2, 29)},
		{"month end, on last day", MonthEndDay, date(2024, 2, 29), date(2024, 2, 29)},
		{"day 31 clamped in april", 31, date(2024, 5, 10), date(2024, 4, 30)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Calculator{ReadingDay: tc.readingDay}
			if got := c.LastReadingDate(tc.today); !got.Equal(tc.want) {
				t.Errorf("want %s got %s", tc.want.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		})
	}
}

func TestNextReadingDate(t *testing.T) {
	c := Calculator{ReadingDay: 20}
	if got := c.NextReadingDate(date(2024, 5, 20)); !got.Equal(date(2024, 6, 20)) {
		t.Errorf("want 2024-06-20 got %s", got.Format("2006-01-02"))
	}

	c = Calculator{ReadingDay: MonthEndDay}
	if got := c.NextReadingDate(date(2024, 1, 31)); !got.Equal(date(2024, 2, 29)) {
		t.Errorf("want 2024-02-29 got %s", got.Format("2006-01-02"))
	}
}

func TestIsBillingMonth(t *testing.T) {
	odd := Calculator{BimonthlyCycle: BimonthlyOdd}
	even := Calculator{BimonthlyCycle: BimonthlyEven}
	off := Calculator{BimonthlyCycle: BimonthlyDisabled}

	march := date(2024, 3, 10)
	april := date(2024, 4, 10)

	if !odd.IsBillingMonth(march) || odd.IsBillingMonth(april) {
		t.Error("odd cycle should bill in March, not April")
	}
	if even.IsBillingMonth(march) || !even.IsBillingMonth(april) {
		t.Error("even cycle should bill in April, not March")
	}
	if off.IsBillingMonth(march) || off.IsBillingMonth(april) {
		t.Error("disabled cycle never bills combined")
	}
}

func TestCalculatorBill_BaseFeeAndCorrection(t *testing.T) {
	c := Calculator{ReadingDay: 20, BaseFee: 1250, CorrectionFactor: 0.98}
	prev := PeriodFactors{HeatContent: 42.0, UnitPrice: 15.0}
	curr := PeriodFactors{HeatContent: 43.0, UnitPrice: 16.0}

	res, err := c.Bill(Reading{StartVolume: 100, CurrentVolume: 130}, prev, curr, date(2024, 6, 10))
	if err != nil {
		t.Fatalf("Bill failed: %v", err)
	}

	// Cycle 2024-05-20 .. 2024-06-10 with factor boundary at 2024-06-01.
	corrected := 30.0 * 0.98
	wantUsageFee := corrected*12.0/21.0*42.0*15.0 + corrected*9.0/21.0*43.0*16.0
	if math.Abs(res.BaseAmount-(wantUsageFee+1250)) > 1e-9 {
		t.Errorf("base amount: want %f got %f", wantUsageFee+1250, res.BaseAmount)
	}
	if res.UsageVolume != 30 {
		t.Errorf("usage volume should stay uncorrected: got %f", res.UsageVolume)
	}
	if res.TaxedAmount != Tax(res.BaseAmount) {
		t.Errorf("taxed amount inconsistent with base")
	}
}

func TestCalculatorBill_CycleOpenedToday(t *testing.T) {
	c := Calculator{ReadingDay: 20, BaseFee: 1250}
	f := PeriodFactors{HeatContent: 42.0, UnitPrice: 15.0}

	res, err := c.Bill(Reading{StartVolume: 100, CurrentVolume: 100}, f, f, date(2024, 6, 20))
	if err != nil {
		t.Fatalf("Bill failed: %v", err)
	}
	if res.BaseAmount != 1250 {
		t.Errorf("want base fee only, got %f", res.BaseAmount)
	}
	if res.TaxedAmount != 1375 {
		t.Errorf("want 1375, got %d", res.TaxedAmount)
	}
}

func TestCloseBill_AnchorsOnPreviousReadingDay(t *testing.T) {
	c := Calculator{ReadingDay: 20, BaseFee: 1250}
	prev := PeriodFactors{HeatContent: 42.0, UnitPrice: 15.0}
	curr := PeriodFactors{HeatContent: 43.0, UnitPrice: 16.0}

	res, err := c.CloseBill(Reading{StartVolume: 100, CurrentVolume: 130}, prev, curr, date(2024, 6, 20))
	if err != nil {
		t.Fatalf("CloseBill failed: %v", err)
	}
	if !res.PeriodStart.Equal(date(2024, 5, 20)) || !res.PeriodEnd.Equal(date(2024, 6, 20)) {
		t.Errorf("period: got %s..%s",
			res.PeriodStart.Format("2006-01-02"), res.PeriodEnd.Format("2006-01-02"))
	}
	if res.DaysPrev != 12 || res.DaysCurr != 19 {
		t.Errorf("day split: got prev=%d curr=%d", res.DaysPrev, res.DaysCurr)
	}

	wantUsage := 30.0*12.0/31.0*42.0*15.0 + 30.0*19.0/31.0*43.0*16.0
	if math.Abs(res.BaseAmount-(wantUsage+1250)) > 1e-9 {
		t.Errorf("base amount: want %f got %f", wantUsage+1250, res.BaseAmount)
	}
}

func TestEstimateUsage(t *testing.T) {
	c := Calculator{ReadingDay: 20}

	// 10 days into a 31-day cycle, 10 m³ used so far.
	est, err := c.EstimateUsage(Reading{StartVolume: 0, CurrentVolume: 10}, date(2024, 5, 30))
	if err != nil {
		t.Fatalf("EstimateUsage failed: %v", err)
	}
	if math.Abs(est-31.0) > 1e-9 {
		t.Errorf("want 31 got %f", est)
	}

	// Day one of the cycle: no trend yet, report current usage as-is.
	est, err = c.EstimateUsage(Reading{StartVolume: 0, CurrentVolume: 3}, date(2024, 5, 20))
	if err != nil {
		t.Fatalf("EstimateUsage failed: %v", err)
	}
	if est != 3 {
		t.Errorf("want 3 got %f", est)
	}
}

func TestEstimateBill_CoversFullCycle(t *testing.T) {
	c := Calculator{ReadingDay: 20, BaseFee: 1000}
	prev := PeriodFactors{HeatContent: 42.0, UnitPrice: 15.0}
	curr := PeriodFactors{HeatContent: 43.0, UnitPrice: 16.0}

	res, err := c.EstimateBill(Reading{StartVolume: 0, CurrentVolume: 10}, prev, curr, date(2024, 5, 30))
	if err != nil {
		t.Fatalf("EstimateBill failed: %v", err)
	}
	if !res.PeriodStart.Equal(date(2024, 5, 20)) || !res.PeriodEnd.Equal(date(2024, 6, 20)) {
		t.Errorf("estimate should span the full cycle, got %s..%s",
			res.PeriodStart.Format("2006-01-02"), res.PeriodEnd.Format("2006-01-02"))
	}
	if res.DaysPrev != 12 || res.DaysCurr != 19 {
		t.Errorf("day split: got prev=%d curr=%d", res.DaysPrev, res.DaysCurr)
	}
	if res.TaxedAmount <= 1100 {
		t.Errorf("estimate should exceed the taxed base fee, got %d", res.TaxedAmount)
	}
}
