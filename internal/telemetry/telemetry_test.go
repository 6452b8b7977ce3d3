package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	assert.Equal(t, "collector:4318", Endpoint(""))
	assert.Equal(t, "explicit:4318", Endpoint("explicit:4318"))
}

func TestSetupEnabled(t *testing.T) {
	// The exporter connects lazily, so setup succeeds without a collector.
	shutdown, err := Setup(context.Background(), "127.0.0.1:4318")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.mu.Unlock()
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}

func (c *collector) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func exportOneSpan(t *testing.T, endpoint string) {
	t.Helper()
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown, err := Setup(context.Background(), endpoint)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "render")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetupExportsToEndpointURL(t *testing.T) {
	c := &collector{}
	ts := httptest.NewServer(c)
	defer ts.Close()

	exportOneSpan(t, ts.URL)
	assert.Equal(t, []string{TracesPath}, c.Paths())
}

func TestSetupExportsToHostPort(t *testing.T) {
	c := &collector{}
	ts := httptest.NewServer(c)
	defer ts.Close()

	exportOneSpan(t, strings.TrimPrefix(ts.URL, "http://"))
	assert.Equal(t, []string{TracesPath}, c.Paths())
}

func TestSetupRejectsUnsupportedScheme(t *testing.T) {
	_, err := Setup(context.Background(), "grpc://collector:4317")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestExporterOptionsAcceptsURLForms(t *testing.T) {
	for _, endpoint := range []string{"http://collector:4318", "http://collector:4318/", "https://collector/v1/traces"} {
		opts, err := exporterOptions(endpoint)
		require.NoError(t, err, endpoint)
		assert.Len(t, opts, 1, endpoint)
	}
}
