package provider

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The Koone family of suppliers (Incheon, Gyeonggi) shares one DWR backend;
// the gateways differ only in the region code sent with the charge-cost
// lookup.
func init() {
	Register(Config{
		Key:  "incheon_gas",
		Name: "Incheon City Gas",
		New: func(opts Options) Gateway {
			return &KooneDWR{key: "incheon_gas", name: "Incheon City Gas",
				region: "1", client: opts.httpClient(), now: time.Now}
		},
	})
	Register(Config{
		Key:  "gyeonggi_gas",
		Name: "Gyeonggi City Gas",
		New: func(opts Options) Gateway {
			return &KooneDWR{key: "gyeonggi_gas", name: "Gyeonggi City Gas",
				region: "2", client: opts.httpClient(), now: time.Now}
		},
	})
}

const (
	koonePriceURL = "https://icgas.co.kr:8443/recruit/dwr/exec/ICGAS.getChargecost.dwr"
	kooneHeatURL  = "https://icgas.co.kr:8443/recruit/dwr/exec/PAY.getSimplePayCalListData.dwr"
)

// KooneDWR queries the shared Koone DWR endpoints. The responses are
// JavaScript fragments assigning HTML snippets to variables, so values are
// pulled out with regexes rather than a DOM walk.
type KooneDWR struct {
	key    string
	name   string
	region string
	client *http.Client
	now    func() time.Time
}

func (g *KooneDWR) ID() string   { return g.key }
func (g *KooneDWR) Name() string { return g.name }

func (g *KooneDWR) FetchHeatData(ctx context.Context) (*HeatData, error) {
	today := g.now()
	prevFirst, prevLast, currFirst := monthWindows(today)

	curr, err := g.fetchHeatForPeriod(ctx, currFirst, today)
	if err != nil {
		return nil, fmt.Errorf("%s: current month heat: %w", g.key, err)
	}
	prev, err := g.fetchHeatForPeriod(ctx, prevFirst, prevLast)
	if err != nil {
		return nil, fmt.Errorf("%s: previous month heat: %w", g.key, err)
	}
	return &HeatData{PrevMonth: prev, CurrMonth: curr}, nil
}

func (g *KooneDWR) FetchPriceData(ctx context.Context) (*PriceData, error) {
	today := g.now()
	prevFirst, _, currFirst := monthWindows(today)

	curr, err := g.fetchPriceForDate(ctx, currFirst)
	if err != nil {
		return nil, fmt.Errorf("%s: current month price: %w", g.key, err)
	}
	prev, err := g.fetchPriceForDate(ctx, prevFirst)
	if err != nil {
		return nil, fmt.Errorf("%s: previous month price: %w", g.key, err)
	}
	return &PriceData{PrevMonth: prev, CurrMonth: curr}, nil
}

func (g *KooneDWR) fetchHeatForPeriod(ctx context.Context, start, end time.Time) (float64, error) {
	body, err := g.postDWR(ctx, kooneHeatURL, url.Values{
		"callCount":     {"1"},
		"c0-scriptName": {"PAY"},
		"c0-methodName": {"getSimplePayCalListData"},
		"c0-id":         {dwrSessionID()},
		"c0-param0":     {"string:" + start.Format("20060102")},
		"c0-param1":     {"string:" + end.Format("20060102")},
		"xml":           {"true"},
	})
	if err != nil {
		return 0, err
	}
	return ParseKooneHeatResponse(body)
}

func (g *KooneDWR) fetchPriceForDate(ctx context.Context, target time.Time) (float64, error) {
	body, err := g.postDWR(ctx, koonePriceURL, url.Values{
		"callCount":     {"1"},
		"c0-scriptName": {"ICGAS"},
		"c0-methodName": {"getChargecost"},
		"c0-id":         {dwrSessionID()},
		"c0-param0":     {"string:" + g.region},
		"c0-param1":     {"string:주택취사"},
		"c0-param2":     {"string:" + target.Format("2006-01-02")},
		"c0-param3":     {"string:주택취사"},
		"xml":           {"true"},
	})
	if err != nil {
		return 0, err
	}
	return ParseKoonePriceResponse(body)
}

func (g *KooneDWR) postDWR(ctx context.Context, rawURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
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

// DWR calls want a unique per-call id.
func dwrSessionID() string {
	return fmt.Sprintf("%04d_%d", 1000+rand.Intn(9000), time.Now().UnixMilli())
}

var (
	kooneS0Re   = regexp.MustCompile(`(?s)var s0="(.+?)";`)
	kooneHeatRe = regexp.MustCompile(`([0-9]+\.[0-9]+)\s*MJ/Nm`)
	kooneS6Re   = regexp.MustCompile(`var s6="([0-9]+\.[0-9]+)"`)
)

// ParseKooneHeatResponse pulls the average heat content out of a heat lookup
// DWR response. The s0 variable carries an HTML snippet containing a figure
// like "42.507 MJ/Nm³".
func ParseKooneHeatResponse(body string) (float64, error) {
	s0 := kooneS0Re.FindStringSubmatch(body)
	if s0 == nil {
		return 0, fmt.Errorf("no s0 variable in response")
	}
	m := kooneHeatRe.FindStringSubmatch(s0[1])
	if m == nil {
		return 0, fmt.Errorf("no heat figure in s0 snippet")
	}
	return strconv.ParseFloat(m[1], 64)
}

// ParseKoonePriceResponse pulls the unit price out of a charge-cost DWR
// response, where it is assigned to the s6 variable.
func ParseKoonePriceResponse(body string) (float64, error) {
	m := kooneS6Re.FindStringSubmatch(body)
	if m == nil {
		return 0, fmt.Errorf("no s6 price variable in response")
	}
	return strconv.ParseFloat(m[1], 64)
}
