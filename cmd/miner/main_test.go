package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bardlex/gominer/internal/config"
)

// isolateEnv clears the variables run reads so the host environment cannot leak in
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MINER_ADDRESS", "NODE_HOST", "NODE_PORT", "MINER_THREADS",
		"KAFKA_BROKERS", "REDIS_URL", "INFLUX_URL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantAddress string
		wantHost    string
		wantPort    int
		wantThreads int
		wantErr     bool
	}{
		{
			name:        "defaults kept",
			args:        nil,
			wantAddress: "env-address",
			wantHost:    "localhost",
			wantPort:    8000,
			wantThreads: 1,
		},
		{
			name:        "all flags",
			args:        []string{"--address", "me", "--host", "node.local", "--port", "9000", "--threads", "4"},
			wantAddress: "me",
			wantHost:    "node.local",
			wantPort:    9000,
			wantThreads: 4,
		},
		{
			name:        "equals form",
			args:        []string{"--threads=8"},
			wantAddress: "env-address",
			wantHost:    "localhost",
			wantPort:    8000,
			wantThreads: 8,
		},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: true},
		{name: "bad port", args: []string{"--port", "abc"}, wantErr: true},
		{name: "positional argument", args: []string{"extra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv("MINER_ADDRESS", "env-address")

			cfg := config.Load()
			err := applyFlags(cfg, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("applyFlags() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyFlags() unexpected error: %v", err)
			}

			if cfg.MinerAddress != tt.wantAddress {
				t.Errorf("MinerAddress = %q, want %q", cfg.MinerAddress, tt.wantAddress)
			}
			if cfg.NodeHost != tt.wantHost {
				t.Errorf("NodeHost = %q, want %q", cfg.NodeHost, tt.wantHost)
			}
			if cfg.NodePort != tt.wantPort {
				t.Errorf("NodePort = %d, want %d", cfg.NodePort, tt.wantPort)
			}
			if cfg.Threads != tt.wantThreads {
				t.Errorf("Threads = %d, want %d", cfg.Threads, tt.wantThreads)
			}
		})
	}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{name: "help", args: []string{"--help"}, wantCode: exitOK, wantOut: "--address"},
		{name: "missing address", args: nil, wantCode: exitUsage, wantOut: "miner address is required"},
		{name: "zero threads", args: []string{"--address", "me", "--threads", "0"}, wantCode: exitUsage, wantOut: "threads"},
		{name: "port out of range", args: []string{"--address", "me", "--port", "70000"}, wantCode: exitUsage, wantOut: "port"},
		{name: "unknown flag", args: []string{"--bogus"}, wantCode: exitUsage, wantOut: "Invalid arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)

			var stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stderr)
			if code != tt.wantCode {
				t.Errorf("run() = %d, want %d (stderr: %s)", code, tt.wantCode, stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.wantOut) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.wantOut)
			}
		})
	}
}

func TestRun_CleanShutdown(t *testing.T) {
	isolateEnv(t)
	t.Setenv("POLL_INTERVAL", "50ms")
	t.Setenv("RETRY_DELAY", "10ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	difficulty := new(big.Int).Lsh(big.NewInt(1), 255)
	var submitted atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"version":"01","previous_hash":%q,"difficulty":%s,"block_size":10000,"block_reward":50}`,
			strings.Repeat("00", 32), difficulty.String())
	})
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	mux.HandleFunc("/blocks", func(w http.ResponseWriter, _ *http.Request) {
		submitted.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	host, port, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("SplitHostPort() error: %v", err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		t.Fatalf("invalid port %q", port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	codes := make(chan int, 1)
	go func() {
		var stderr bytes.Buffer
		codes <- run(ctx, []string{"--address", "me", "--host", host, "--port", port, "--threads", "2"}, &stderr)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for submitted.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case code := <-codes:
		if code != exitOK {
			t.Errorf("run() = %d, want %d", code, exitOK)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	if submitted.Load() == 0 {
		t.Error("no block was submitted before shutdown")
	}
}
