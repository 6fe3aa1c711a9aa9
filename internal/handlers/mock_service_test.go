package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"printer_shutdown/internal/models"
	"printer_shutdown/internal/service"
)

type mockAuth struct {
	mu sync.Mutex

	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastGenUsername    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	return m.genTokenToken, m.genTokenErr
}

func (m *mockAuth) ParseToken(token string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

func (m *mockAuth) parsed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastParseToken
}

func (m *mockAuth) rejectTokens(err error) {
	m.mu.Lock()
	m.parseErr = err
	m.mu.Unlock()
}

func (m *mockAuth) EnsureUser(_ context.Context, username, password string) (bool, error) {
	return false, nil
}

type mockWatch struct {
	err   error
	kinds []string
	srcs  []string
}

func (m *mockWatch) Submit(_ context.Context, kind, source string) error {
	m.kinds = append(m.kinds, kind)
	m.srcs = append(m.srcs, source)
	return m.err
}

type mockMonitoring struct {
	mu    sync.Mutex
	state models.WatchState
	err   error
}

func (m *mockMonitoring) GetState(context.Context) (models.WatchState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockMonitoring) set(st models.WatchState) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}

type mockPrinterStatus struct {
	status models.PrinterStatus
	err    error
}

func (m *mockPrinterStatus) GetLast(context.Context) (models.PrinterStatus, error) {
	return m.status, m.err
}

type mockEventLog struct {
	resp []models.WatchEvent
	err  error
	last service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.WatchEvent, error) {
	m.last = f
	return m.resp, m.err
}

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewHandler(s, nil, Options{AllowSignUp: true}).InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func withAuth(req *http.Request, token string) *http.Request {
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
