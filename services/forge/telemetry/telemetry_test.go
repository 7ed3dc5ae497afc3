// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup_DisabledStillReturnsShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", false)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_InstallsPropagation(t *testing.T) {
	if _, err := Setup(context.Background(), "", false); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	fields := otel.GetTextMapPropagator().Fields()
	found := false
	for _, f := range fields {
		if f == "traceparent" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("propagator fields = %v, want traceparent", fields)
	}
}

func TestSetup_DebugUsesStdoutExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { shutdown(context.Background()) })

	tracer := otel.Tracer("telemetry-test")
	_, span := tracer.Start(context.Background(), "probe")
	span.End()
	// The exporter writes to stdout; the assertion is that construction
	// and span emission do not error or hang.
}
