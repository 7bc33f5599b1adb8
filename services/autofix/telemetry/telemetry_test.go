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
	"errors"
	"testing"
)

func TestInitDisabledExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "mend",
		TraceExporter:  "none",
		MetricExporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{
		ServiceName:   "mend",
		TraceExporter: "carrier-pigeon",
	})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("got %v, want ErrUnknownExporter", err)
	}
}

func TestInitNilContext(t *testing.T) {
	//lint:ignore SA1012 the nil guard is the behavior under test
	if _, err := Init(nil, DefaultConfig()); !errors.Is(err, ErrNilContext) {
		t.Errorf("got %v, want ErrNilContext", err)
	}
}

func TestDefaultConfigDisablesExporters(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	if cfg.TraceExporter != "none" || cfg.MetricExporter != "none" {
		t.Errorf("config %+v, want exporters off by default", cfg)
	}
	if cfg.ServiceName != "mend" {
		t.Errorf("service name %q", cfg.ServiceName)
	}
}
