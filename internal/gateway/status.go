package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"printer_shutdown/internal/models"
)

const opFetchStatus = "fetch status"

var errNotJSON = errors.New("body is not valid JSON")

// StatusPoller reads the printer's rr_status endpoint.
type StatusPoller struct {
	url     string
	timeout time.Duration
	doer    Doer
	now     func() time.Time
}

func NewStatusPoller(url string, timeout time.Duration, doer Doer) *StatusPoller {
	if doer == nil {
		doer = NewHTTPClient(timeout)
	}
	return &StatusPoller{url: url, timeout: timeout, doer: doer, now: time.Now}
}

// FetchStatus performs one GET and parses the reply permissively.
// Only transport problems, non-200 and non-JSON bodies are errors.
func (p *StatusPoller) FetchStatus(ctx context.Context) (models.PrinterSnapshot, error) {
	code, body, err := get(ctx, p.doer, opFetchStatus, p.url, p.timeout)
	if err != nil {
		return models.PrinterSnapshot{}, err
	}
	if code != http.StatusOK {
		return models.PrinterSnapshot{}, &PollError{Op: opFetchStatus, URL: p.url, Kind: KindStatus, StatusCode: code}
	}

	snap, err := ParseStatus(body)
	if err != nil {
		return models.PrinterSnapshot{}, &PollError{Op: opFetchStatus, URL: p.url, Kind: KindMalformed, StatusCode: code, Err: err}
	}
	snap.FetchedAt = p.now()
	return snap, nil
}

// ParseStatus extracts status, fractionPrinted and temps.bed.current.
// Absent or wrongly typed fields become "" or 0.
func ParseStatus(body []byte) (models.PrinterSnapshot, error) {
	if !gjson.ValidBytes(body) {
		return models.PrinterSnapshot{}, errNotJSON
	}
	res := gjson.GetManyBytes(body, "status", "fractionPrinted", "temps.bed.current")

	return models.PrinterSnapshot{
		Status:          stringField(res[0]),
		FractionPrinted: numberField(res[1]),
		BedTempC:        numberField(res[2]),
	}, nil
}

func stringField(r gjson.Result) string {
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}

func numberField(r gjson.Result) float64 {
	if r.Type != gjson.Number {
		return 0
	}
	return r.Num
}
