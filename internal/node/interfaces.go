package node

import (
	"context"
)

// ChainStateClient defines the contract for talking to the node.
// Workers and the poller depend on this interface so tests can substitute a fake node.
type ChainStateClient interface {
	// GetChainInfo returns the node's current mining parameters.
	GetChainInfo(ctx context.Context) (*ChainState, error)

	// GetPendingTransactions returns the pending pool in the node's order.
	GetPendingTransactions(ctx context.Context) ([]Transaction, error)

	// SubmitBlock posts a solved block and reports the node's verdict.
	SubmitBlock(ctx context.Context, block *SolvedBlock) (SubmitStatus, error)

	// Close releases connections held by the client.
	Close()
}

// Compile-time interface compliance check
var _ ChainStateClient = (*Client)(nil)
