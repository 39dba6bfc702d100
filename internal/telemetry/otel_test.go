package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "host and port",
			opts: Options{ServiceName: "grove-relay", ServiceVersion: "test", Endpoint: "localhost:4318"},
		},
		{
			name: "full url",
			opts: Options{ServiceName: "grove-relay", Endpoint: "https://collector.example.com:4318"},
		},
		{
			name: "empty service name",
			opts: Options{Endpoint: "localhost:4318"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("InitTracer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tp != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				// Nothing listens on the endpoint; only the provider lifecycle is under test.
				_ = Shutdown(shutdownCtx, tp)
			}
		})
	}
}

func TestShutdown(t *testing.T) {
	t.Run("shutdown with nil provider", func(t *testing.T) {
		if err := Shutdown(context.Background(), nil); err != nil {
			t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
		}
	})
}
