package observe

import (
	"bytes"
	"context"
	"testing"
)

func TestNewTelemetryDisabled(t *testing.T) {
	tel, err := NewTelemetry(TelemetryConfig{ServiceName: "perchgate", Enabled: false})
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}
	if tel.Tracer() == nil {
		t.Fatal("disabled telemetry must still hand out a tracer")
	}

	// Spans against the noop tracer are safe.
	_, span := tel.Tracer().Start(context.Background(), "test")
	span.End()

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewTelemetryEnabledExportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	tel, err := NewTelemetry(TelemetryConfig{
		ServiceName:    "perchgate",
		ServiceVersion: "test",
		Enabled:        true,
		Writer:         &buf,
	})
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}

	_, span := tel.Tracer().Start(context.Background(), "gateway.evaluate")
	span.End()

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("gateway.evaluate")) {
		t.Error("exported spans missing from writer output")
	}
}
