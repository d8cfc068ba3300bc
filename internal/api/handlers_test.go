package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-hertz-coder/RiverAI/internal/dispatch"
	"github.com/max-hertz-coder/RiverAI/internal/models"
)

type stubPublisher struct {
	err    error
	bodies [][]byte
}

func (s *stubPublisher) PublishTask(ctx context.Context, body []byte) error {
	if s.err != nil {
		return s.err
	}
	s.bodies = append(s.bodies, body)
	return nil
}

func newTestRouter(pub *stubPublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(dispatch.New(pub, zerolog.Nop()), zerolog.Nop(), prometheus.NewRegistry())
	h.RegisterRoutes(router)
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpointsEnqueue(t *testing.T) {
	cases := []struct {
		path string
		body string
		kind models.TaskKind
	}{
		{"/api/v1/generate/plan", `{"user_id":7,"student_id":3,"description":"fractions"}`, models.TaskGeneratePlan},
		{"/api/v1/generate/tasks", `{"user_id":7,"student_id":3,"description":"decimals"}`, models.TaskGenerateTasks},
		{"/api/v1/homework/check", `{"user_id":7,"student_id":3,"solution_text":"x=2"}`, models.TaskCheckHomework},
		{"/api/v1/chat/message", `{"user_id":7,"student_id":3,"message":"hello"}`, models.TaskChat},
		{"/api/v1/chat/end", `{"user_id":7,"student_id":3}`, models.TaskEndChat},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			pub := &stubPublisher{}
			w := post(newTestRouter(pub), tc.path, tc.body)

			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["task_id"])

			require.Len(t, pub.bodies, 1)
			var task models.TaskEnvelope
			require.NoError(t, json.Unmarshal(pub.bodies[0], &task))
			assert.Equal(t, tc.kind, task.Kind)
			assert.Equal(t, resp["task_id"], task.TaskID)
			assert.Equal(t, int64(7), task.UserID)
		})
	}
}

func TestSubmitRejectsIncompleteRequest(t *testing.T) {
	pub := &stubPublisher{}
	router := newTestRouter(pub)

	w := post(router, "/api/v1/generate/plan", `{"user_id":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, pub.bodies)

	w = post(router, "/api/v1/chat/message", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitBrokerFailureIs503(t *testing.T) {
	pub := &stubPublisher{err: fmt.Errorf("broker down")}
	w := post(newTestRouter(pub), "/api/v1/chat/message", `{"user_id":7,"student_id":3,"message":"hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&stubPublisher{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&stubPublisher{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
