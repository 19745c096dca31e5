package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithSweepID(ctx, "sweep-456")
	ctx = WithWorkerID(ctx, 3)
	ctx = WithGridIndex(ctx, 7)

	var buf bytes.Buffer
	logger := PropagateToLogger(ctx, zerolog.New(&buf))
	logger.Info().Msg("test message")

	output := buf.String()
	for _, want := range []string{`"trace_id":"trace-123"`, `"sweep_id":"sweep-456"`, `"worker_id":3`, `"grid_index":7`} {
		if !contains(output, want) {
			t.Errorf("%s not in log output: %s", want, output)
		}
	}
}

func TestPropagateToLoggerOmitsUnset(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("test")

	output := buf.String()
	if contains(output, "worker_id") || contains(output, "grid_index") || contains(output, "sweep_id") {
		t.Errorf("unexpected tracing fields in %s", output)
	}
}

func TestMergeContext(t *testing.T) {
	source := context.Background()
	source = WithTraceID(source, "trace-source")
	source = WithSweepID(source, "sweep-source")
	source = WithGridIndex(source, 2)

	merged := MergeContext(context.Background(), source)

	if GetTraceID(merged) != "trace-source" {
		t.Error("Trace ID not merged")
	}
	if GetSweepID(merged) != "sweep-source" {
		t.Error("Sweep ID not merged")
	}
	if GetGridIndex(merged) != 2 {
		t.Error("Grid index not merged")
	}
	if GetWorkerID(merged) != -1 {
		t.Error("Worker ID should stay unset")
	}
}

func TestMergeContextNoOverwrite(t *testing.T) {
	source := WithSweepID(context.Background(), "sweep-source")
	target := WithSweepID(context.Background(), "sweep-target")

	merged := MergeContext(target, source)

	if GetSweepID(merged) != "sweep-target" {
		t.Error("Sweep ID should not be overwritten")
	}
}

// Helper function to check if string contains substring
func contains(s, substr string) bool {
	return bytes.Contains([]byte(s), []byte(substr))
}
