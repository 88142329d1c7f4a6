package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/dex-router/internal/events"
	"github.com/rovshanmuradov/dex-router/internal/execution"
	"github.com/rovshanmuradov/dex-router/internal/metrics"
	"github.com/rovshanmuradov/dex-router/internal/service"
	"github.com/rovshanmuradov/dex-router/internal/storage/memory"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*execution.Job
}

func (q *fakeQueue) Admit(_ context.Context, job *execution.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Active() int   { return 2 }
func (q *fakeQueue) Capacity() int { return 10 }

type testEnv struct {
	router  *gin.Engine
	queue   *fakeQueue
	bus     *events.Bus
	journal *events.Journal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	queue := &fakeQueue{}
	bus := events.NewBus(logger)
	journal := events.NewJournal(10)
	router := NewRouter(Deps{
		Orders:   service.NewOrderService(memory.New(), queue, logger),
		Queue:    queue,
		Events:   bus,
		Journal:  journal,
		Metrics:  metrics.NewCollector().Handler(),
		WSBuffer: 8,
		Logger:   logger,
	})
	return &testEnv{router: router, queue: queue, bus: bus, journal: journal}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/orders/execute",
		`{"tokenPair":"SOL/USDC","amount":"10","slippageTolerance":"1.0"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var order map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.NotEmpty(t, order["id"])
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "SOL/USDC", order["tokenPair"])
	for _, field := range []string{"selectedDex", "executionPrice", "txHash", "errorMessage", "routingData"} {
		v, ok := order[field]
		assert.True(t, ok, field)
		assert.Nil(t, v, field)
	}
	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, order["id"], env.queue.jobs[0].OrderID)
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"negative amount", `{"tokenPair":"SOL/USDC","amount":"-5","slippageTolerance":"1"}`, "amount"},
		{"missing pair", `{"amount":"5","slippageTolerance":"1"}`, "tokenPair"},
		{"slippage out of range", `{"tokenPair":"SOL/USDC","amount":"5","slippageTolerance":"150"}`, "slippageTolerance"},
		{"malformed body", `{"tokenPair":`, "body"},
		{"numeric amount", `{"tokenPair":"SOL/USDC","amount":5,"slippageTolerance":"1"}`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/orders/execute", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Error   string               `json:"error"`
				Details []service.FieldError `json:"details"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Validation failed", resp.Error)
			require.NotEmpty(t, resp.Details)
			assert.Equal(t, tt.field, resp.Details[0].Field)
		})
	}
	assert.Empty(t, env.queue.jobs)
}

func TestGetAndListOrders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	var ids []string
	for _, pair := range []string{"SOL/USDC", "BONK/SOL"} {
		w := env.do(http.MethodPost, "/api/orders/execute",
			`{"tokenPair":"`+pair+`","amount":"1","slippageTolerance":"0.5"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var o models.Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
		ids = append(ids, o.ID)
	}

	w = env.do(http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, ids[1], list[0].ID)

	w = env.do(http.MethodGet, "/api/orders/"+ids[0], "")
	require.Equal(t, http.StatusOK, w.Code)
	var one models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, "SOL/USDC", one.TokenPair)

	w = env.do(http.MethodGet, "/api/orders/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Order not found"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
		Queue     struct {
			Active   int `json:"active"`
			Capacity int `json:"capacity"`
		} `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Positive(t, resp.Timestamp)
	assert.Equal(t, 2, resp.Queue.Active)
	assert.Equal(t, 10, resp.Queue.Capacity)
}

func TestRecentLogs(t *testing.T) {
	env := newTestEnv(t)
	for _, s := range []models.OrderStatus{models.StatusRouting, models.StatusBuilding, models.StatusSubmitted} {
		env.journal.Add(events.EntryFor(events.NewStatusUpdate("order-1", s, nil)))
	}

	w := env.do(http.MethodGet, "/api/logs?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.TransactionLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, "Transaction sent to network", logs[0].Message)

	w = env.do(http.MethodGet, "/api/logs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dex_router_")
}

func TestWebSocketStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.bus.Publish(context.Background(), events.NewStatusUpdate("order-7", models.StatusRouting, nil))
	env.bus.Publish(context.Background(), events.NewStatusUpdate("order-7", models.StatusBuilding, nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []models.OrderStatus{models.StatusRouting, models.StatusBuilding} {
		var got events.Envelope
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, events.TypeOrderUpdate, got.Type)
		assert.Equal(t, "order-7", got.Data.OrderID)
		assert.Equal(t, want, got.Data.Status)
	}

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.bus.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
