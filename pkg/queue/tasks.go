// Package queue schedules transaction analyses on asynq.
package queue

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

// AnalyzeTaskType is the task type of a transaction analysis.
const AnalyzeTaskType = "cfg_analyze"

var (
	ErrAlreadyQueued  = errors.New("analysis already queued")
	ErrInvalidPayload = errors.New("invalid task payload")
)

// AnalyzePayload is the payload of an analysis task.
//
//nolint:tagliatelle // snake_case matches the API request body
type AnalyzePayload struct {
	TxHash string `json:"tx_hash"`
	// Root overrides the transaction recipient.
	Root string `json:"root,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *AnalyzePayload) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *AnalyzePayload) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

// NewAnalyzeTask creates an analysis task.
func NewAnalyzeTask(payload *AnalyzePayload) (*asynq.Task, error) {
	data, err := payload.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(AnalyzeTaskType, data), nil
}

// TaskID is the asynq task ID of an analysis, used to drop duplicates.
func TaskID(payload *AnalyzePayload) string {
	if payload.Root == "" {
		return "analyze:" + payload.TxHash
	}

	return "analyze:" + payload.TxHash + ":" + payload.Root
}
