package provider

import (
	"context"
	"net/http"
	"time"
)

// HeatData carries the average heat content published for the previous and
// current calendar month, in MJ/Nm³.
type HeatData struct {
	PrevMonth float64 `json:"prev_month"`
	CurrMonth float64 `json:"curr_month"`
}

// PriceData carries the residential unit price published for the previous and
// current calendar month, in currency per MJ.
type PriceData struct {
	PrevMonth float64 `json:"prev_month"`
	CurrMonth float64 `json:"curr_month"`
}

// Gateway fetches published billing factors from one gas supplier.
//
// Fetch methods return (nil, nil) when the supplier has nothing to offer,
// meaning locally held values must be kept untouched. A non-nil error means
// the fetch was attempted and failed.
type Gateway interface {
	ID() string
	Name() string
	FetchHeatData(ctx context.Context) (*HeatData, error)
	FetchPriceData(ctx context.Context) (*PriceData, error)
}

// Options carries the runtime dependencies handed to gateway constructors.
type Options struct {
	Client *http.Client

	// TariffPDFPath points at a locally downloaded tariff sheet, used only
	// by the PDF gateway.
	TariffPDFPath string
}

func (o Options) httpClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// monthWindows returns the first and last day of the previous month and the
// first day of the current month for a given reference date. Suppliers
// publish factors per calendar month, so every gateway queries these windows.
func monthWindows(today time.Time) (prevFirst, prevLast, currFirst time.Time) {
	currFirst = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	prevLast = currFirst.AddDate(0, 0, -1)
	prevFirst = time.Date(prevLast.Year(), prevLast.Month(), 1, 0, 0, 0, 0, today.Location())
	return prevFirst, prevLast, currFirst
}
