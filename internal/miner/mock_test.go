package miner

import (
	"context"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/bardlex/gominer/internal/messaging"
	"github.com/bardlex/gominer/internal/node"
	"github.com/bardlex/gominer/internal/pow"
	"github.com/bardlex/gominer/internal/telemetry"
	"github.com/bardlex/gominer/pkg/log"
)

const testAddress = "miner-address"

func testLogger() *log.Logger {
	return log.NewWithWriter(io.Discard, "test", "test", "error", "json")
}

func testState(prevHash string, difficulty *big.Int) *node.ChainState {
	return &node.ChainState{
		Version:      "01",
		PreviousHash: prevHash,
		Difficulty:   difficulty,
		BlockSize:    10000,
		BlockReward:  50,
	}
}

func zeroHash() string {
	return strings.Repeat("00", 32)
}

func easyTarget() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 256)
}

// mockClient is a hand-written ChainStateClient for tests
type mockClient struct {
	mu sync.Mutex

	state    *node.ChainState
	stateErr error

	pending    []node.Transaction
	pendingErr error

	submitStatus node.SubmitStatus
	submitErr    error
	submitted    []*node.SolvedBlock

	// When set, SubmitBlock closes submitStarted and then blocks until submitGate is closed
	submitStarted chan struct{}
	submitGate    chan struct{}
	startOnce     sync.Once

	infoCalls    int
	pendingCalls int
	closed       bool
}

func (m *mockClient) GetChainInfo(_ context.Context) (*node.ChainState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCalls++
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	return m.state, nil
}

func (m *mockClient) GetPendingTransactions(_ context.Context) ([]node.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCalls++
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	return append([]node.Transaction{}, m.pending...), nil
}

func (m *mockClient) SubmitBlock(_ context.Context, b *node.SolvedBlock) (node.SubmitStatus, error) {
	if m.submitGate != nil {
		m.startOnce.Do(func() { close(m.submitStarted) })
		<-m.submitGate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, b)
	return m.submitStatus, m.submitErr
}

func (m *mockClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockClient) setState(state *node.ChainState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.stateErr = err
}

func (m *mockClient) submissions() []*node.SolvedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*node.SolvedBlock(nil), m.submitted...)
}

func (m *mockClient) attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingCalls
}

func (m *mockClient) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// flipSource serves first until Current has been called flipAfter times, then second
type flipSource struct {
	mu        sync.Mutex
	first     *node.ChainState
	second    *node.ChainState
	flipAfter int
	calls     int
	refreshes int
	ready     chan struct{}
}

func newFlipSource(first, second *node.ChainState, flipAfter int) *flipSource {
	ready := make(chan struct{})
	close(ready)
	return &flipSource{first: first, second: second, flipAfter: flipAfter, ready: ready}
}

func (s *flipSource) Current() *node.ChainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.second != nil && s.calls > s.flipAfter {
		return s.second
	}
	return s.first
}

func (s *flipSource) Ready() <-chan struct{} {
	return s.ready
}

func (s *flipSource) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
}

func (s *flipSource) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// recordingSink implements Recorder and Publisher
type recordingSink struct {
	mu       sync.Mutex
	rates    map[int]float64
	outcomes []*telemetry.BlockOutcome
	found    []*messaging.BlockFoundEvent
	results  []*messaging.BlockSubmissionResult
}

func newRecordingSink() *recordingSink {
	return &recordingSink{rates: make(map[int]float64)}
}

func (r *recordingSink) RecordHashrate(_ context.Context, worker int, hashesPerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[worker] = hashesPerSecond
}

func (r *recordingSink) RecordBlock(_ context.Context, outcome *telemetry.BlockOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingSink) PublishBlockFound(_ context.Context, event *messaging.BlockFoundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.found = append(r.found, event)
	return nil
}

func (r *recordingSink) PublishSubmissionResult(_ context.Context, result *messaging.BlockSubmissionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *recordingSink) counts() (found, results, outcomes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.found), len(r.results), len(r.outcomes)
}

func newTestWorker(client node.ChainStateClient, source SnapshotSource, reporter *Reporter) *Worker {
	if reporter == nil {
		reporter = NewReporter(nil, 0, nil, nil, testLogger())
	}
	return &Worker{
		id:         0,
		service:    "test",
		address:    testAddress,
		client:     client,
		source:     source,
		searcher:   &pow.Searcher{CheckInterval: 16, Meter: pow.NewMeter()},
		maxNonce:   1 << 20,
		retryDelay: 10 * time.Millisecond,
		reporter:   reporter,
		stats:      &Stats{},
		logger:     testLogger(),
		now:        func() time.Time { return time.Unix(1700000000, 0) },
	}
}
