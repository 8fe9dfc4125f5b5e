// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProvider_DisabledInstallsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:     false,
		ServiceName: "streamsift-test",
		Exporter:    "grpc",
	})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewProvider_RejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:     true,
		ServiceName: "streamsift-test",
		Exporter:    "carrier-pigeon",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "grpc, http")
}

func TestProvider_ShutdownWithoutProviderIsFine(t *testing.T) {
	provider := &Provider{}
	require.NoError(t, provider.Shutdown(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_ConcurrentShutdown(t *testing.T) {
	provider := &Provider{}
	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_ = provider.Shutdown(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
}

func TestTracer_ProducesSpansInContext(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	tracer := Tracer("streamsift-test")
	require.NotNil(t, tracer)

	ctx, span := tracer.Start(context.Background(), "observe")
	require.NotNil(t, span)
	span.End()

	assert.NotNil(t, trace.SpanFromContext(ctx))
}
