package vcontrold

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPort_Valid(t *testing.T) {
	cfg := defaultConfig()

	err := WithPort(3003)(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3003, cfg.port)

	err = WithPort(1)(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.port)

	err = WithPort(65535)(cfg)
	require.NoError(t, err)
	assert.Equal(t, 65535, cfg.port)
}

func TestWithPort_Invalid(t *testing.T) {
	cfg := defaultConfig()

	assert.Error(t, WithPort(0)(cfg))
	assert.Error(t, WithPort(-1)(cfg))
	assert.Error(t, WithPort(65536)(cfg))
}

func TestWithConnectTimeout(t *testing.T) {
	cfg := defaultConfig()

	require.NoError(t, WithConnectTimeout(10*time.Second)(cfg))
	assert.Equal(t, 10*time.Second, cfg.connectTimeout)

	assert.Error(t, WithConnectTimeout(0)(cfg))
	assert.Error(t, WithConnectTimeout(-1*time.Second)(cfg))
}

func TestWithRequestTimeout(t *testing.T) {
	cfg := defaultConfig()

	require.NoError(t, WithRequestTimeout(time.Second)(cfg))
	assert.Equal(t, time.Second, cfg.requestTimeout)

	assert.Error(t, WithRequestTimeout(0)(cfg))
	assert.Error(t, WithRequestTimeout(-1*time.Second)(cfg))
}

func TestWithPrompt(t *testing.T) {
	cfg := defaultConfig()

	require.NoError(t, WithPrompt("ctl>")(cfg))
	assert.Equal(t, "ctl>", cfg.prompt)

	assert.Error(t, WithPrompt("")(cfg))
	assert.Error(t, WithPrompt("a\nb")(cfg))
	assert.Equal(t, "ctl>", cfg.prompt)
}

func TestWithRetryPolicy(t *testing.T) {
	cfg := defaultConfig()
	p := RetryPolicy{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Second}

	require.NoError(t, WithRetryPolicy(p)(cfg))
	assert.Equal(t, p, cfg.retry)

	assert.Error(t, WithRetryPolicy(RetryPolicy{})(cfg))
	assert.Equal(t, p, cfg.retry)
}

func TestWithLogger(t *testing.T) {
	cfg := defaultConfig()
	assert.Nil(t, cfg.logger)

	logger := slog.Default()
	require.NoError(t, WithLogger(logger)(cfg))
	assert.Equal(t, logger, cfg.logger)

	require.NoError(t, WithLogger(nil)(cfg))
	assert.Nil(t, cfg.logger)
}

func TestWithDialer(t *testing.T) {
	cfg := defaultConfig()

	assert.Error(t, WithDialer(nil)(cfg))

	called := false
	require.NoError(t, WithDialer(func(context.Context, string, string) (net.Conn, error) {
		called = true
		return nil, assert.AnError
	})(cfg))

	_, err := cfg.dial(context.Background(), "tcp", "127.0.0.1:1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, called)
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 3002, cfg.port)
	assert.Equal(t, 5*time.Second, cfg.connectTimeout)
	assert.Equal(t, 5*time.Second, cfg.requestTimeout)
	assert.Equal(t, "vctrld>", cfg.prompt)
	assert.Equal(t, DefaultRetryPolicy(), cfg.retry)
	assert.Nil(t, cfg.logger)
	assert.NotNil(t, cfg.dial)
}

func TestBuildConfig_StopsAtFirstError(t *testing.T) {
	_, err := buildConfig([]ClientOption{WithPort(1), WithPort(0)})
	assert.Error(t, err)

	cfg, err := buildConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.port)
}
