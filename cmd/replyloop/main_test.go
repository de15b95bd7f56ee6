package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fluxorio/replyloop/pkg/config"
	"github.com/fluxorio/replyloop/pkg/observability/tracing"
)

func testConfig() config.Dispatcher {
	cfg := config.Default()
	cfg.Callers = 3
	cfg.Workers = 2
	cfg.PayloadUnit = time.Millisecond
	cfg.MaxPayload = 5
	cfg.MaxStartDelay = 3 * time.Millisecond
	cfg.Log.Level = "error"
	cfg.Normalize()
	return cfg
}

func TestRunDispatcher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out, traces bytes.Buffer
	cfg := testConfig()
	cfg.Tracing.Exporter = tracing.ExporterStdout

	if err := runDispatcher(ctx, cfg, 7, &out, &traces); err != nil {
		t.Fatalf("runDispatcher() error = %v\n%s", err, out.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != cfg.Callers {
		t.Fatalf("report lines = %d, want %d:\n%s", len(lines), cfg.Callers, out.String())
	}
	for _, line := range lines {
		if strings.Contains(line, "FAILED") {
			t.Errorf("unexpected failure: %s", line)
		}
	}
	if !strings.Contains(traces.String(), "dispatch.item") {
		t.Error("stdout exporter recorded no dispatch.item span")
	}
}

func TestConfigCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--workers", "7", "--callers", "2"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"workers: 7", "callers: 2", "inbound_capacity: 2", "payload_unit: 1s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConfigCmd_Invalid(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--trace-exporter", "carrier-pigeon"})

	if err := cmd.Execute(); err == nil {
		t.Error("Execute() error = nil, want validation error")
	}
}
