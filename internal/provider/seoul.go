package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func init() {
	Register(Config{
		Key:  "seoul_gas",
		Name: "Seoul City Gas",
		New: func(opts Options) Gateway {
			return &SeoulGas{client: opts.httpClient(), now: time.Now}
		},
	})
}

const (
	seoulHeatURL  = "https://www.seoulgas.co.kr/front/payment/selectHeat.do"
	seoulPriceURL = "https://www.seoulgas.co.kr/front/payment/gasPayTable.do"
)

// SeoulGas scrapes the Seoul City Gas customer pages: the average heat
// content lookup form and the residential tariff table.
type SeoulGas struct {
	client *http.Client
	now    func() time.Time
}

func (s *SeoulGas) ID() string   { return "seoul_gas" }
func (s *SeoulGas) Name() string { return "Seoul City Gas" }

// FetchHeatData posts the heat lookup form twice, once per calendar month,
// and extracts the published average from each response.
func (s *SeoulGas) FetchHeatData(ctx context.Context) (*HeatData, error) {
	today := s.now()
	prevFirst, prevLast, currFirst := monthWindows(today)

	currHTML, err := s.postForm(ctx, seoulHeatURL, url.Values{
		"startDate": {currFirst.Format("2006.01.02")},
		"endDate":   {today.Format("2006.01.02")},
	})
	if err != nil {
		return nil, fmt.Errorf("seoul_gas: current month heat: %w", err)
	}
	currHeat, err := ParseSeoulHeatHTML(currHTML)
	if err != nil {
		return nil, fmt.Errorf("seoul_gas: current month heat: %w", err)
	}

	prevHTML, err := s.postForm(ctx, seoulHeatURL, url.Values{
		"startDate": {prevFirst.Format("2006.01.02")},
		"endDate":   {prevLast.Format("2006.01.02")},
	})
	if err != nil {
		return nil, fmt.Errorf("seoul_gas: previous month heat: %w", err)
	}
	prevHeat, err := ParseSeoulHeatHTML(prevHTML)
	if err != nil {
		return nil, fmt.Errorf("seoul_gas: previous month heat: %w", err)
	}

	return &HeatData{PrevMonth: prevHeat, CurrMonth: currHeat}, nil
}

// FetchPriceData scrapes the tariff table page and reads the residential
// cooking row, which carries the previous and current month unit prices.
func (s *SeoulGas) FetchPriceData(ctx context.Context) (*PriceData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seoulPriceURL, nil)
	if err != nil {
		return nil, err
	}
	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("seoul_gas: price table: %w", err)
	}
	prev, curr, err := ParseSeoulPriceHTML(body)
	if err != nil {
		return nil, fmt.Errorf("seoul_gas: price table: %w", err)
	}
	return &PriceData{PrevMonth: prev, CurrMonth: curr}, nil
}

func (s *SeoulGas) postForm(ctx context.Context, rawURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *SeoulGas) do(req *http.Request) (string, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var (
	// The heat value sits in a paragraph mentioning 평균 열량 ("average
	// heat") inside the content div; the first decimal after the label is
	// the MJ/Nm³ figure.
	seoulHeatRe = regexp.MustCompile(`평균\s*열량[^0-9]*([0-9]+\.[0-9]+)`)

	// Tariff table row: the header cell mentioning 취사 (residential
	// cooking) is followed by the previous and current month unit prices.
	seoulPriceRowRe = regexp.MustCompile(`(?s)<th[^>]*>[^<]*취사[^<]*</th>\s*<td[^>]*>\s*([0-9.,]+)\s*</td>\s*<td[^>]*>\s*([0-9.,]+)\s*</td>`)
)

// ParseSeoulHeatHTML extracts the average heat content from the heat lookup
// response page.
func ParseSeoulHeatHTML(html string) (float64, error) {
	m := seoulHeatRe.FindStringSubmatch(html)
	if m == nil {
		return 0, fmt.Errorf("no average heat figure in page")
	}
	return strconv.ParseFloat(m[1], 64)
}

// ParseSeoulPriceHTML extracts the previous and current month residential
// unit prices from the tariff table page.
func ParseSeoulPriceHTML(html string) (prev, curr float64, err error) {
	m := seoulPriceRowRe.FindStringSubmatch(html)
	if m == nil {
		return 0, 0, fmt.Errorf("no residential cooking row in tariff table")
	}
	prev, err = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("previous month price %q: %w", m[1], err)
	}
	curr, err = strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("current month price %q: %w", m[2], err)
	}
	return prev, curr, nil
}
