package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the process configuration, read once at startup.
type Config struct {
	// Provider is the supplier gateway key (seoul_gas, incheon_gas,
	// manual, tariff_pdf).
	Provider string

	// ReadingDay is the monthly meter-reading day, 1..31, or 0 for the
	// last day of the month.
	ReadingDay int

	// ReadingHour and ReadingMinute set the local time at which the
	// rollover window opens on the reading day.
	ReadingHour   int
	ReadingMinute int

	// RefreshInterval is the default refresh schedule: integer seconds or
	// a cron expression. A storage setting can override it at runtime.
	RefreshInterval string

	// BimonthlyCycle is "disabled", "odd" or "even".
	BimonthlyCycle string

	// BaseFee is the fixed per-cycle charge added before tax.
	BaseFee float64

	// CorrectionFactor scales metered volume; <= 0 means no correction.
	CorrectionFactor float64

	// TariffPDFPath points the tariff_pdf gateway at a local file.
	TariffPDFPath string

	DBDriver string
	DBDSN    string

	Port string
}

// FromEnv builds a Config from CITYGASD_* environment variables with sane
// defaults, validating the billing calendar settings. An unusable reading
// day or time is a startup error.
func FromEnv() (Config, error) {
	cfg := Config{
		Provider:         getenv("CITYGASD_PROVIDER", "manual"),
		RefreshInterval:  getenv("CITYGASD_REFRESH_INTERVAL", "1800"),
		BimonthlyCycle:   getenv("CITYGASD_BIMONTHLY_CYCLE", "disabled"),
		TariffPDFPath:    os.Getenv("CITYGASD_TARIFF_PDF_PATH"),
		DBDriver:         getenv("CITYGASD_DB_DRIVER", "memory"),
		DBDSN:            os.Getenv("CITYGASD_DB_DSN"),
		Port:             getenv("PORT", "8080"),
		BaseFee:          1250,
		CorrectionFactor: 1.0,
	}

	day, err := atoiDefault("CITYGASD_READING_DAY", 1)
	if err != nil {
		return Config{}, err
	}
	if day < 0 || day > 31 {
		return Config{}, fmt.Errorf("config: CITYGASD_READING_DAY must be 0..31, got %d", day)
	}
	cfg.ReadingDay = day

	hh, mm, err := parseClock(getenv("CITYGASD_READING_TIME", "09:00"))
	if err != nil {
		return Config{}, err
	}
	cfg.ReadingHour, cfg.ReadingMinute = hh, mm

	switch cfg.BimonthlyCycle {
	case "disabled", "odd", "even":
	default:
		return Config{}, fmt.Errorf("config: CITYGASD_BIMONTHLY_CYCLE must be disabled, odd or even, got %q", cfg.BimonthlyCycle)
	}

	if v := os.Getenv("CITYGASD_BASE_FEE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return Config{}, fmt.Errorf("config: bad CITYGASD_BASE_FEE %q", v)
		}
		cfg.BaseFee = f
	}
	if v := os.Getenv("CITYGASD_CORRECTION_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return Config{}, fmt.Errorf("config: bad CITYGASD_CORRECTION_FACTOR %q", v)
		}
		cfg.CorrectionFactor = f
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: bad %s %q", key, v)
	}
	return n, nil
}

// parseClock parses "HH:MM".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: CITYGASD_READING_TIME must be HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("config: bad hour in CITYGASD_READING_TIME %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("config: bad minute in CITYGASD_READING_TIME %q", s)
	}
	return hour, minute, nil
}
