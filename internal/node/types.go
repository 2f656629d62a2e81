// Package node provides the HTTP/JSON client for the blockchain node the miner works against,
// together with the wire types exchanged with it.
package node

import (
	"math/big"
)

// Transaction is a pending transaction as served by GET /transactions.
// Field names and order define the serialized form used for block size accounting.
type Transaction struct {
	Timestamp int64  `json:"timestamp"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Pubkey    string `json:"pubkey"`
}

// ChainState is one snapshot of the node's mining parameters (GET /info).
// Snapshots are immutable once published; the poller replaces them wholesale.
type ChainState struct {
	Version      string   `json:"version"`
	PreviousHash string   `json:"previous_hash"`
	Difficulty   *big.Int `json:"difficulty"`
	BlockSize    int      `json:"block_size"`
	BlockReward  int64    `json:"block_reward"`
}

// SolvedBlock is the body of POST /blocks. The node recomputes the hash itself.
type SolvedBlock struct {
	Transactions []Transaction `json:"transactions"`
	Nonce        uint64        `json:"nonce"`
	Timestamp    int64         `json:"timestamp"`
}

// SubmitStatus is the node's verdict on a submitted block
type SubmitStatus int

const (
	// Rejected covers any non-200 status and any transport failure
	Rejected SubmitStatus = iota
	// Accepted means the node answered 200
	Accepted
)

// String returns string representation of the status
func (s SubmitStatus) String() string {
	switch s {
	case Accepted:
		return "accepted"
	default:
		return "rejected"
	}
}

// infoResponse mirrors ChainState with pointers so missing fields can be detected
type infoResponse struct {
	Version      *string  `json:"version"`
	PreviousHash *string  `json:"previous_hash"`
	Difficulty   *big.Int `json:"difficulty"`
	BlockSize    *int     `json:"block_size"`
	BlockReward  *int64   `json:"block_reward"`
}

// transactionResponse mirrors Transaction; the fields that feed the merkle leaf are required
type transactionResponse struct {
	Timestamp *int64  `json:"timestamp"`
	Sender    *string `json:"sender"`
	Receiver  *string `json:"receiver"`
	Amount    *int64  `json:"amount"`
	Fee       *int64  `json:"fee"`
	Message   string  `json:"message"`
	Signature string  `json:"signature"`
	Pubkey    string  `json:"pubkey"`
}
