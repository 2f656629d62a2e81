package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bardlex/gominer/pkg/circuit"
	"github.com/bardlex/gominer/pkg/errors"
	"github.com/bardlex/gominer/pkg/log"
	"github.com/bardlex/gominer/pkg/retry"
)

const (
	infoPath         = "/info"
	transactionsPath = "/transactions"
	blocksPath       = "/blocks"

	// maxResponseBytes bounds how much of a response body is read
	maxResponseBytes = 32 << 20
)

// Client talks to the node's HTTP API. Each client owns its own connection pool,
// so every worker and the poller can hold an independent one.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
	logger         *log.Logger
}

// NewClient creates a node client for baseURL (e.g. "http://localhost:8000").
// timeout bounds every individual HTTP request.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 2

	logger = logger.WithComponent("node_client")

	// Read calls fail fast while the node is down; submissions bypass the breaker.
	cbConfig := &circuit.Config{
		MaxFailures:     5,
		SuccessRequired: 1,
		Timeout:         10 * time.Second,
		ResetTimeout:    60 * time.Second,
		OnStateChange: func(from, to circuit.State) {
			logger.Warn("node circuit state changed", "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NodeConfig(),
		logger:         logger,
	}
}

// Close releases idle connections held by the client
func (c *Client) Close() {
	if state := c.circuitBreaker.State(); state != circuit.StateClosed {
		c.logger.Debug("closing node client with circuit not closed", "circuit", state.String())
	}
	c.httpClient.CloseIdleConnections()
}

// GetChainInfo fetches the node's current mining parameters.
// Connection, timeout, and parse failures are all reported as unreachable (see IsUnreachable).
func (c *Client) GetChainInfo(ctx context.Context) (*ChainState, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*ChainState, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*ChainState, error) {
			var resp infoResponse
			if err := c.getJSON(ctx, "get_info", infoPath, &resp); err != nil {
				return nil, err
			}
			return resp.toChainState()
		})
	})
}

// GetPendingTransactions fetches the node's pending pool in the node's order.
// An empty pool yields an empty, non-nil slice.
func (c *Client) GetPendingTransactions(ctx context.Context) ([]Transaction, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() ([]Transaction, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() ([]Transaction, error) {
			var resp []transactionResponse
			if err := c.getJSON(ctx, "get_transactions", transactionsPath, &resp); err != nil {
				return nil, err
			}

			txs := make([]Transaction, 0, len(resp))
			for i := range resp {
				tx, err := resp[i].toTransaction()
				if err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeValidation, "get_transactions",
						"malformed transaction in pending pool").
						With("index", i)
				}
				txs = append(txs, tx)
			}
			return txs, nil
		})
	})
}

// SubmitBlock posts a solved block. HTTP 200 is Accepted; any other status or a
// transport failure is Rejected, with the error describing why. It never retries.
func (c *Client) SubmitBlock(ctx context.Context, block *SolvedBlock) (SubmitStatus, error) {
	body, err := json.Marshal(block)
	if err != nil {
		return Rejected, errors.Wrap(err, errors.ErrorTypeValidation, "submit_block",
			"failed to encode block")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+blocksPath, bytes.NewReader(body))
	if err != nil {
		return Rejected, errors.Wrap(err, errors.ErrorTypeInternal, "submit_block",
			"failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Rejected, errors.Wrap(err, errors.ErrorTypeNetwork, "submit_block",
			"failed to reach node").
			With("url", req.URL.String())
	}
	defer c.drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Rejected, errors.New(errors.ErrorTypeNode, "submit_block",
			"node rejected block").
			With("status", resp.StatusCode).
			With("reason", strings.TrimSpace(string(reason)))
	}

	return Accepted, nil
}

// getJSON performs a GET and decodes the JSON body into dest
func (c *Client) getJSON(ctx context.Context, operation, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, operation, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeNetwork, operation, "failed to reach node").
			With("url", req.URL.String())
	}
	defer c.drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrorTypeNetwork, operation, "unexpected status from node").
			With("status", resp.StatusCode).
			With("url", req.URL.String())
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dest); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, operation, "malformed response body").
			With("url", req.URL.String())
	}

	return nil
}

// drain discards the rest of body so the connection can be reused
func (c *Client) drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
	if err := body.Close(); err != nil {
		c.logger.Debug("failed to close response body", "error", err)
	}
}

func (r *infoResponse) toChainState() (*ChainState, error) {
	missing := func(field string) error {
		return errors.New(errors.ErrorTypeValidation, "get_info", "missing or invalid field").
			With("field", field)
	}

	switch {
	case r.Version == nil:
		return nil, missing("version")
	case r.PreviousHash == nil || *r.PreviousHash == "":
		return nil, missing("previous_hash")
	case r.Difficulty == nil || r.Difficulty.Sign() <= 0:
		return nil, missing("difficulty")
	case r.BlockSize == nil || *r.BlockSize <= 0:
		return nil, missing("block_size")
	case r.BlockReward == nil || *r.BlockReward < 0:
		return nil, missing("block_reward")
	}

	return &ChainState{
		Version:      *r.Version,
		PreviousHash: *r.PreviousHash,
		Difficulty:   r.Difficulty,
		BlockSize:    *r.BlockSize,
		BlockReward:  *r.BlockReward,
	}, nil
}

func (r *transactionResponse) toTransaction() (Transaction, error) {
	switch {
	case r.Timestamp == nil:
		return Transaction{}, fmt.Errorf("missing field %q", "timestamp")
	case r.Sender == nil:
		return Transaction{}, fmt.Errorf("missing field %q", "sender")
	case r.Receiver == nil:
		return Transaction{}, fmt.Errorf("missing field %q", "receiver")
	case r.Amount == nil:
		return Transaction{}, fmt.Errorf("missing field %q", "amount")
	case r.Fee == nil:
		return Transaction{}, fmt.Errorf("missing field %q", "fee")
	}

	return Transaction{
		Timestamp: *r.Timestamp,
		Sender:    *r.Sender,
		Receiver:  *r.Receiver,
		Amount:    *r.Amount,
		Fee:       *r.Fee,
		Message:   r.Message,
		Signature: r.Signature,
		Pubkey:    r.Pubkey,
	}, nil
}

// IsUnreachable reports whether err from GetChainInfo or GetPendingTransactions means the
// node could not be used this cycle. Network failures and malformed responses are treated alike.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	return errors.IsType(err, errors.ErrorTypeNetwork) ||
		errors.IsType(err, errors.ErrorTypeValidation) ||
		errors.IsType(err, errors.ErrorTypeTimeout) ||
		errors.IsType(err, errors.ErrorTypeInternal)
}
