package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/queue"
)

const txHash = "0x5555555555555555555555555555555555555555555555555555555555555555"

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, payload *queue.AnalyzePayload) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, payload)

	info, _ := args.Get(0).(*asynq.TaskInfo)

	return info, args.Error(1)
}

func serve(t *testing.T, e Enqueuer, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	NewHandler(logrus.New(), e, cfg.DefaultConfig()).RegisterRoutes(mux)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	return rec
}

func TestAnalyzeTransaction(t *testing.T) {
	e := new(mockEnqueuer)
	e.On("Enqueue", mock.Anything, &queue.AnalyzePayload{TxHash: txHash}).
		Return(&asynq.TaskInfo{ID: "analyze:" + txHash, Queue: "cfg:analyze"}, nil)

	rec := serve(t, e, http.MethodPost, "/api/v1/analyze/"+txHash, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp AnalyzeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, AnalyzeResponse{Status: "queued", TxHash: txHash, TaskID: "analyze:" + txHash, Queue: "cfg:analyze"}, resp)
	e.AssertExpectations(t)
}

func TestAnalyzeTransaction_WithRoot(t *testing.T) {
	root := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	e := new(mockEnqueuer)
	e.On("Enqueue", mock.Anything, &queue.AnalyzePayload{TxHash: txHash, Root: root}).
		Return(&asynq.TaskInfo{ID: "x", Queue: "q"}, nil)

	rec := serve(t, e, http.MethodPost, "/api/v1/analyze/"+txHash, `{"root":"`+root+`"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	e.AssertExpectations(t)
}

func TestAnalyzeTransaction_Errors(t *testing.T) {
	tests := []struct {
		name       string
		hash       string
		body       string
		enqueueErr error
		wantStatus int
	}{
		{name: "invalid hash", hash: "0x1234", wantStatus: http.StatusBadRequest},
		{name: "invalid body", hash: txHash, body: "{", wantStatus: http.StatusBadRequest},
		{name: "invalid root", hash: txHash, body: `{"root":"0x12"}`, wantStatus: http.StatusBadRequest},
		{name: "duplicate", hash: txHash, enqueueErr: queue.ErrAlreadyQueued, wantStatus: http.StatusConflict},
		{name: "redis down", hash: txHash, enqueueErr: errors.New("dial tcp: connection refused"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(mockEnqueuer)
			e.On("Enqueue", mock.Anything, mock.Anything).Return(nil, tt.enqueueErr)

			rec := serve(t, e, http.MethodPost, "/api/v1/analyze/"+tt.hash, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestBuildGraph(t *testing.T) {
	rec := serve(t, new(mockEnqueuer), http.MethodPost, "/api/v1/cfg", `{"code":"0x5b6004565b00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CodeSize  uint32   `json:"code_size"`
		JumpDests []uint32 `json:"jump_dests"`
		Blocks    []struct {
			Start uint32 `json:"start"`
			End   uint32 `json:"end"`
		} `json:"blocks"`
		Edges []struct {
			From uint32 `json:"from"`
			To   uint32 `json:"to"`
			Kind string `json:"kind"`
		} `json:"edges"`
	}

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, uint32(6), resp.CodeSize)
	assert.Equal(t, []uint32{0, 4}, resp.JumpDests)
	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, uint32(3), resp.Blocks[0].End)
	assert.Equal(t, uint32(4), resp.Blocks[1].Start)
	require.Len(t, resp.Edges, 1)
	assert.Equal(t, "direct", resp.Edges[0].Kind)
}

func TestBuildGraph_DOT(t *testing.T) {
	rec := serve(t, new(mockEnqueuer), http.MethodPost, "/api/v1/cfg?format=dot", `{"code":"0x5b6004565b00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/vnd.graphviz", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "digraph")
}

func TestBuildGraph_Errors(t *testing.T) {
	tooLarge := `{"code":"0x` + strings.Repeat("00", maxCodeSize+1) + `"}`

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "invalid json", body: "{", wantStatus: http.StatusBadRequest},
		{name: "invalid hex", body: `{"code":"0xzz"}`, wantStatus: http.StatusBadRequest},
		{name: "empty code", body: `{"code":"0x"}`, wantStatus: http.StatusBadRequest},
		{name: "too large", body: tooLarge, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, new(mockEnqueuer), http.MethodPost, "/api/v1/cfg", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := serve(t, new(mockEnqueuer), http.MethodGet, "/api/v1/cfg", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
