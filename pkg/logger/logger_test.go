package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})

	ctx := logg.WithOrderID(context.Background(), "ord-1")
	ctx = logg.WithField(ctx, "job", "transfer-reconcile")
	logg.Info(ctx, "hello")

	line := buf.String()
	for _, want := range []string{`"order_id":"ord-1"`, `"job":"transfer-reconcile"`, `"service":"test"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("debug should parse")
	}
	if ParseLevel(" nonsense ") != zerolog.InfoLevel {
		t.Fatal("bad input should default to info")
	}
}
