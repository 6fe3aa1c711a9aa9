package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const duetIdle = `{"status":"I","coords":{"axesHomed":[1,1,1]},"temps":{"bed":{"current":23.4,"active":0.0,"state":0},"current":[23.4,25.1]},"fractionPrinted":0.0,"seq":12}`

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   string
		fraction float64
		bed      float64
		wantErr  bool
	}{
		{name: "duet idle", body: duetIdle, status: "I", fraction: 0, bed: 23.4},
		{name: "printing", body: `{"status":"P","fractionPrinted":45.2,"temps":{"bed":{"current":60}}}`, status: "P", fraction: 45.2, bed: 60},
		{name: "missing fraction", body: `{"status":"I","temps":{"bed":{"current":30}}}`, status: "I", fraction: 0, bed: 30},
		{name: "fraction as string", body: `{"status":"I","fractionPrinted":"12","temps":{"bed":{"current":30}}}`, status: "I", fraction: 0, bed: 30},
		{name: "status as number", body: `{"status":5,"fractionPrinted":0,"temps":{"bed":{"current":30}}}`, status: "", bed: 30},
		{name: "bed is object", body: `{"status":"I","temps":{"bed":{"current":{"v":1}}}}`, status: "I"},
		{name: "empty object", body: `{}`},
		{name: "not json", body: `<html>busy</html>`, wantErr: true},
		{name: "truncated", body: `{"status":"I"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := ParseStatus([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, snap.Status)
			assert.InDelta(t, tt.fraction, snap.FractionPrinted, 1e-9)
			assert.InDelta(t, tt.bed, snap.BedTempC, 1e-9)
		})
	}
}

func TestFetchStatus_OK(t *testing.T) {
	var gotPath, gotConn string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotConn = r.Header.Get("Connection")
		_, _ = w.Write([]byte(duetIdle))
	}))
	defer srv.Close()

	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewStatusPoller(srv.URL+"/rr_status?type=3", time.Second, nil)
	p.now = func() time.Time { return fixed }

	snap, err := p.FetchStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/rr_status?type=3", gotPath)
	assert.Equal(t, "close", gotConn)
	assert.Equal(t, "I", snap.Status)
	assert.InDelta(t, 23.4, snap.BedTempC, 1e-9)
	assert.Equal(t, fixed, snap.FetchedAt)
}

// The printer's embedded server answers HTTP/1.0 with no length and closes the socket.
func TestFetchStatus_HTTP10CloseDelimited(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = http.ReadRequest(bufio.NewReader(conn))
		_, _ = conn.Write([]byte("HTTP/1.0 200 OK\r\nContent-Type: application/json\r\n\r\n" + duetIdle))
	}()

	p := NewStatusPoller("http://"+l.Addr().String()+"/rr_status?type=3", time.Second, nil)
	snap, err := p.FetchStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "I", snap.Status)
	assert.InDelta(t, 23.4, snap.BedTempC, 1e-9)
}

func TestFetchStatus_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind string
		wantCode int
	}{
		{
			name:     "non 200",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			wantKind: KindStatus,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "not json",
			handler:  func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("nope")) },
			wantKind: KindMalformed,
			wantCode: http.StatusOK,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantKind: KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewStatusPoller(srv.URL, 100*time.Millisecond, nil)
			_, err := p.FetchStatus(context.Background())
			require.Error(t, err)

			var pe *PollError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.wantCode, pe.StatusCode)
			assert.Equal(t, opFetchStatus, pe.Op)
		})
	}
}

func TestFetchStatus_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewStatusPoller(url, time.Second, nil).FetchStatus(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestKindOf_NotPollError(t *testing.T) {
	assert.Equal(t, "", KindOf(errors.New("plain")))
	assert.Equal(t, "", KindOf(nil))
}
