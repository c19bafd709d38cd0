package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/queue-worker/internal/api/dto"
	"github.com/cuongbtq/queue-worker/internal/api/handler"
	"github.com/cuongbtq/queue-worker/internal/queue"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enqueueCall struct {
	Queue   string
	Payload domain.Payload
	Opts    domain.EnqueueOptions
}

type fakeService struct {
	enqueued []enqueueCall
	kicks    []int
	err      error
}

func (s *fakeService) Queues() []string { return []string{"emails"} }

func (s *fakeService) known(q string) error {
	if q != "emails" {
		return &domain.ConfigurationError{Queue: q, Err: domain.ErrQueueNotBound}
	}
	return s.err
}

func (s *fakeService) Enqueue(_ context.Context, q string, payload domain.Payload, opts domain.EnqueueOptions) (string, error) {
	if err := s.known(q); err != nil {
		return "", err
	}
	s.enqueued = append(s.enqueued, enqueueCall{Queue: q, Payload: payload, Opts: opts})
	return "101", nil
}

func (s *fakeService) Stats(_ context.Context, q string) (*domain.QueueStats, error) {
	if err := s.known(q); err != nil {
		return nil, err
	}
	return &domain.QueueStats{Queue: q, Ready: 2, Buried: 1}, nil
}

func (s *fakeService) Kick(_ context.Context, q string, bound int) (int, error) {
	if err := s.known(q); err != nil {
		return 0, err
	}
	s.kicks = append(s.kicks, bound)
	return 1, nil
}

func newTestRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(&handler.Dependencies{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Service: svc,
	})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"queue-api-service"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()

	newTestRouter(&fakeService{}).ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestListQueues(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/api/v1/queues", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"queues":["emails"]}`, w.Body.String())
}

func TestEnqueueJob(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		check      func(t *testing.T, svc *fakeService, w *httptest.ResponseRecorder)
	}{
		{
			name:       "defaults",
			path:       "/api/v1/queues/emails/jobs",
			body:       `{"payload":{"to":"user@example.com"}}`,
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, svc *fakeService, w *httptest.ResponseRecorder) {
				var resp dto.EnqueueJobResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, dto.EnqueueJobResponse{JobID: "101", Queue: "emails"}, resp)

				require.Len(t, svc.enqueued, 1)
				assert.Equal(t, domain.Payload{"to": "user@example.com"}, svc.enqueued[0].Payload)
				assert.Equal(t, domain.EnqueueOptions{Priority: domain.DefaultPriority}, svc.enqueued[0].Opts)
			},
		},
		{
			name:       "delay and priority",
			path:       "/api/v1/queues/emails/jobs",
			body:       `{"payload":{},"delay_seconds":30,"priority":0}`,
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, svc *fakeService, w *httptest.ResponseRecorder) {
				require.Len(t, svc.enqueued, 1)
				assert.Equal(t, domain.EnqueueOptions{Delay: 30 * time.Second, Priority: 0}, svc.enqueued[0].Opts)
			},
		},
		{
			name:       "large integer in payload",
			path:       "/api/v1/queues/emails/jobs",
			body:       `{"payload":{"user_id":9007199254740993}}`,
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, svc *fakeService, w *httptest.ResponseRecorder) {
				require.Len(t, svc.enqueued, 1)
				assert.Equal(t, domain.Payload{"user_id": json.Number("9007199254740993")}, svc.enqueued[0].Payload)
			},
		},
		{
			name:       "missing payload",
			path:       "/api/v1/queues/emails/jobs",
			body:       `{"delay_seconds":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "payload not an object",
			path:       "/api/v1/queues/emails/jobs",
			body:       `{"payload":[1,2]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative delay",
			path:       "/api/v1/queues/emails/jobs",
			body:       `{"payload":{},"delay_seconds":-5}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown queue",
			path:       "/api/v1/queues/sms/jobs",
			body:       `{"payload":{}}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			w := do(newTestRouter(svc), http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, svc, w)
			}
		})
	}
}

func TestEnqueueJob_BrokerError(t *testing.T) {
	svc := &fakeService{err: errors.New("connection reset")}

	w := do(newTestRouter(svc), http.MethodPost, "/api/v1/queues/emails/jobs", `{"payload":{}}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to enqueue job"}`, w.Body.String())
}

func TestEnqueueJob_InvalidDelayFromService(t *testing.T) {
	svc := &fakeService{err: fmt.Errorf("%w: -5s", queue.ErrInvalidDelay)}

	w := do(newTestRouter(svc), http.MethodPost, "/api/v1/queues/emails/jobs", `{"payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"delay must not be negative: -5s"}`, w.Body.String())
}

func TestGetQueueStats(t *testing.T) {
	r := newTestRouter(&fakeService{})

	w := do(r, http.MethodGet, "/api/v1/queues/emails/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"queue":"emails","ready":2,"reserved":0,"delayed":0,"buried":1}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/queues/sms/stats", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKickJobs(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		svc        *fakeService
		wantStatus int
		wantBound  []int
	}{
		{name: "explicit bound", path: "/api/v1/queues/emails/kick?bound=5", svc: &fakeService{}, wantStatus: http.StatusOK, wantBound: []int{5}},
		{name: "default bound", path: "/api/v1/queues/emails/kick", svc: &fakeService{}, wantStatus: http.StatusOK, wantBound: []int{1}},
		{name: "negative bound", path: "/api/v1/queues/emails/kick?bound=-1", svc: &fakeService{}, wantStatus: http.StatusBadRequest},
		{name: "bad bound", path: "/api/v1/queues/emails/kick?bound=abc", svc: &fakeService{}, wantStatus: http.StatusBadRequest},
		{name: "invalid bound from service", path: "/api/v1/queues/emails/kick?bound=2", svc: &fakeService{err: queue.ErrInvalidBound}, wantStatus: http.StatusBadRequest},
		{name: "unknown queue", path: "/api/v1/queues/sms/kick", svc: &fakeService{}, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestRouter(tt.svc), http.MethodPost, tt.path, "")

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantBound, tt.svc.kicks)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodOptions, "/api/v1/queues/emails/jobs", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
