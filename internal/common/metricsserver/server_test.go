package metricsserver

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/common/configtypes"
)

type mockMetricsHandler struct{}

func (m *mockMetricsHandler) ServeHTTP(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("# TYPE test_metric counter\ntest_metric 42\n")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestStartMetricsServer_Disabled(t *testing.T) {
	server, err := StartMetricsServer(configtypes.MetricsConfig{Enabled: false}, &mockMetricsHandler{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, server)
}

func TestStartMetricsServer_ServesPath(t *testing.T) {
	port := freePort(t)
	listen := fmt.Sprintf("127.0.0.1:%d", port)

	server, err := StartMetricsServer(configtypes.MetricsConfig{
		Enabled: true,
		Listen:  listen,
		Path:    "/metrics",
	}, &mockMetricsHandler{}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.ShutdownWithContext(ctx)
	}()

	status, body, err := fasthttp.GetTimeout(nil, "http://"+listen+"/metrics", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), "test_metric 42")

	status, _, err = fasthttp.GetTimeout(nil, "http://"+listen+"/other", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusNotFound, status)
}

func TestStartMetricsServer_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = StartMetricsServer(configtypes.MetricsConfig{
		Enabled: true,
		Listen:  ln.Addr().String(),
		Path:    "/metrics",
	}, &mockMetricsHandler{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind metrics listener")
}

func TestCreateMetricsHandler(t *testing.T) {
	handler := createMetricsHandler("/custom", &mockMetricsHandler{})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/custom")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}
