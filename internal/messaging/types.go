package messaging

import (
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// BlockFoundEvent is emitted when a worker finds a nonce below the target
type BlockFoundEvent struct {
	Service      string    `json:"service"`
	MinerAddress string    `json:"miner_address"`
	WorkerID     int       `json:"worker_id"`
	BlockHash    string    `json:"block_hash"`
	PreviousHash string    `json:"previous_hash"`
	MerkleRoot   string    `json:"merkle_root"`
	Nonce        uint64    `json:"nonce"`
	Timestamp    int64     `json:"timestamp"`
	TxCount      int       `json:"tx_count"`
	Reward       int64     `json:"reward"`
	Hashes       uint64    `json:"hashes"`
	SearchTimeMs float64   `json:"search_time_ms"`
	FoundAt      time.Time `json:"found_at"`
}

// BlockSubmissionResult represents the result of block submission
type BlockSubmissionResult struct {
	Service        string    `json:"service"`
	WorkerID       int       `json:"worker_id"`
	BlockHash      string    `json:"block_hash"`
	Nonce          uint64    `json:"nonce"`
	Status         string    `json:"status"` // "accepted", "rejected"
	ErrorMessage   string    `json:"error_message,omitempty"`
	SubmissionTime time.Time `json:"submission_time"`
	LatencyMs      float64   `json:"latency_ms"`
}

// ToProto encodes the event as a protobuf Struct
func (e *BlockFoundEvent) ToProto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"service":       e.Service,
		"miner_address": e.MinerAddress,
		"worker_id":     e.WorkerID,
		"block_hash":    e.BlockHash,
		"previous_hash": e.PreviousHash,
		"merkle_root":   e.MerkleRoot,
		// uint64 exceeds float64 precision in a Struct
		"nonce":          strconv.FormatUint(e.Nonce, 10),
		"timestamp":      e.Timestamp,
		"tx_count":       e.TxCount,
		"reward":         e.Reward,
		"hashes":         strconv.FormatUint(e.Hashes, 10),
		"search_time_ms": e.SearchTimeMs,
		"found_at":       e.FoundAt.UTC().Format(time.RFC3339Nano),
	})
}

// ToProto encodes the result as a protobuf Struct
func (r *BlockSubmissionResult) ToProto() (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"service":         r.Service,
		"worker_id":       r.WorkerID,
		"block_hash":      r.BlockHash,
		"nonce":           strconv.FormatUint(r.Nonce, 10),
		"status":          r.Status,
		"submission_time": r.SubmissionTime.UTC().Format(time.RFC3339Nano),
		"latency_ms":      r.LatencyMs,
	}
	if r.ErrorMessage != "" {
		fields["error_message"] = r.ErrorMessage
	}
	return structpb.NewStruct(fields)
}
