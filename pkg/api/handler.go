// Package api serves the HTTP interface of serve mode.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-cfg/pkg/analyzer"
	"github.com/ethpandaops/execution-cfg/pkg/cfg"
	"github.com/ethpandaops/execution-cfg/pkg/highlight"
	"github.com/ethpandaops/execution-cfg/pkg/queue"
	"github.com/ethpandaops/execution-cfg/pkg/render"
)

const (
	// maxBodyBytes bounds request bodies; hex encoded init code fits well
	// within it.
	maxBodyBytes = 1 << 20
	// maxCodeSize is the EIP-3860 init code limit.
	maxCodeSize = 2 * 24576
)

// Enqueuer schedules analyses.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload *queue.AnalyzePayload) (*asynq.TaskInfo, error)
}

type Handler struct {
	log      logrus.FieldLogger
	enqueuer Enqueuer
	config   *cfg.Config
}

func NewHandler(log logrus.FieldLogger, enqueuer Enqueuer, config *cfg.Config) *Handler {
	return &Handler{
		log:      log.WithField("component", "api"),
		enqueuer: enqueuer,
		config:   config,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/analyze/{tx_hash}", h.analyzeTransaction)
	mux.HandleFunc("POST /api/v1/cfg", h.buildGraph)
}

type AnalyzeRequest struct {
	Root string `json:"root,omitempty"`
}

type AnalyzeResponse struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash"`
	TaskID string `json:"task_id,omitempty"`
	Queue  string `json:"queue,omitempty"`
}

type GraphRequest struct {
	Code hexutil.Bytes `json:"code"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	TxHash string `json:"tx_hash,omitempty"`
}

func (h *Handler) analyzeTransaction(w http.ResponseWriter, r *http.Request) {
	txHash := r.PathValue("tx_hash")

	if err := analyzer.ValidateHash(txHash); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transaction hash", txHash)

		return
	}

	var req AnalyzeRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body", txHash)

			return
		}
	}

	if req.Root != "" && !common.IsHexAddress(req.Root) {
		h.writeError(w, http.StatusBadRequest, "invalid root address", txHash)

		return
	}

	info, err := h.enqueuer.Enqueue(r.Context(), &queue.AnalyzePayload{TxHash: txHash, Root: req.Root})
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			h.writeJSON(w, http.StatusConflict, AnalyzeResponse{Status: "already_queued", TxHash: txHash})

			return
		}

		h.log.WithError(err).WithField("tx_hash", txHash).Error("Failed to enqueue analysis")
		h.writeError(w, http.StatusInternalServerError, "failed to enqueue analysis", txHash)

		return
	}

	h.writeJSON(w, http.StatusAccepted, AnalyzeResponse{
		Status: "queued",
		TxHash: txHash,
		TaskID: info.ID,
		Queue:  info.Queue,
	})
}

// buildGraph returns the static graph of the posted code as JSON, or as DOT
// with ?format=dot.
func (h *Handler) buildGraph(w http.ResponseWriter, r *http.Request) {
	var req GraphRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "")

		return
	}

	if len(req.Code) == 0 {
		h.writeError(w, http.StatusBadRequest, "no code provided", "")

		return
	}

	if len(req.Code) > maxCodeSize {
		h.writeError(w, http.StatusRequestEntityTooLarge, "code exceeds the init code size limit", "")

		return
	}

	g := cfg.Build(r.Context(), req.Code, h.config)

	if r.URL.Query().Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write([]byte(render.ContractDOT(highlight.Highlight(g, nil), render.Options{}).String())); err != nil {
			h.log.WithError(err).Error("failed to write response")
		}

		return
	}

	h.writeJSON(w, http.StatusOK, g)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, txHash string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, TxHash: txHash})
}
