package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"

	pdf "github.com/ledongthuc/pdf"
)

func init() {
	Register(Config{
		Key:  "tariff_pdf",
		Name: "Local tariff sheet (PDF)",
		New: func(opts Options) Gateway {
			return &TariffPDF{Path: opts.TariffPDFPath}
		},
	})
}

// TariffPDF reads billing factors from a locally downloaded supplier tariff
// sheet. Useful for suppliers that only publish a monthly PDF. With no path
// configured it behaves like the manual gateway and never returns data.
type TariffPDF struct {
	Path string
}

func (t *TariffPDF) ID() string   { return "tariff_pdf" }
func (t *TariffPDF) Name() string { return "Local tariff sheet (PDF)" }

func (t *TariffPDF) FetchHeatData(ctx context.Context) (*HeatData, error) {
	if t.Path == "" {
		return nil, nil
	}
	heat, _, err := ParseTariffPDF(t.Path)
	if err != nil {
		return nil, fmt.Errorf("tariff_pdf: %w", err)
	}
	return heat, nil
}

func (t *TariffPDF) FetchPriceData(ctx context.Context) (*PriceData, error) {
	if t.Path == "" {
		return nil, nil
	}
	_, price, err := ParseTariffPDF(t.Path)
	if err != nil {
		return nil, fmt.Errorf("tariff_pdf: %w", err)
	}
	return price, nil
}

// ParseTariffPDF opens the tariff sheet at the given path, extracts text,
// and delegates to ParseTariffText.
func ParseTariffPDF(path string) (*HeatData, *PriceData, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	rc, err := r.GetPlainText()
	if err != nil {
		return nil, nil, fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, nil, fmt.Errorf("read pdf text: %w", err)
	}

	return ParseTariffText(buf.String())
}

var (
	tariffPrevHeatRe  = regexp.MustCompile(`(?i)previous\s+month\s+heat[^0-9]*([0-9]+(?:\.[0-9]+)?)`)
	tariffCurrHeatRe  = regexp.MustCompile(`(?i)current\s+month\s+heat[^0-9]*([0-9]+(?:\.[0-9]+)?)`)
	tariffPrevPriceRe = regexp.MustCompile(`(?i)previous\s+month\s+(?:unit\s+)?price[^0-9]*([0-9]+(?:\.[0-9]+)?)`)
	tariffCurrPriceRe = regexp.MustCompile(`(?i)current\s+month\s+(?:unit\s+)?price[^0-9]*([0-9]+(?:\.[0-9]+)?)`)
)

// ParseTariffText parses a plain-text representation of a tariff sheet and
// extracts both factor pairs using regex heuristics.
func ParseTariffText(text string) (*HeatData, *PriceData, error) {
	prevHeat, okPH := parseFirstFloat(tariffPrevHeatRe, text)
	currHeat, okCH := parseFirstFloat(tariffCurrHeatRe, text)
	prevPrice, okPP := parseFirstFloat(tariffPrevPriceRe, text)
	currPrice, okCP := parseFirstFloat(tariffCurrPriceRe, text)

	if !okPH || !okCH {
		return nil, nil, fmt.Errorf("tariff sheet missing heat content figures")
	}
	if !okPP || !okCP {
		return nil, nil, fmt.Errorf("tariff sheet missing unit price figures")
	}

	return &HeatData{PrevMonth: prevHeat, CurrMonth: currHeat},
		&PriceData{PrevMonth: prevPrice, CurrMonth: currPrice}, nil
}

func parseFirstFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
