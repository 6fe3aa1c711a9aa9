package gateway

import (
	"context"
	"net/http"
	"time"
)

const opPowerOff = "power off"

// PowerSwitch drives the smart plug feeding the printer.
type PowerSwitch struct {
	offURL  string
	timeout time.Duration
	doer    Doer
}

func NewPowerSwitch(offURL string, timeout time.Duration, doer Doer) *PowerSwitch {
	if doer == nil {
		doer = NewHTTPClient(timeout)
	}
	return &PowerSwitch{offURL: offURL, timeout: timeout, doer: doer}
}

// PowerOff issues a single request. Only a 200 reply counts as success.
func (s *PowerSwitch) PowerOff(ctx context.Context) error {
	code, _, err := get(ctx, s.doer, opPowerOff, s.offURL, s.timeout)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &PollError{Op: opPowerOff, URL: s.offURL, Kind: KindStatus, StatusCode: code}
	}
	return nil
}
