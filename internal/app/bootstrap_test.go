package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"askdocs/internal/app"
	"askdocs/internal/config"
)

func TestEnsureSchemaWithRetry_Success(t *testing.T) {
	ensure := func(context.Context) error { return nil }
	err := app.EnsureSchemaWithRetry(context.Background(), ensure, 1, time.Millisecond)
	assert.NoError(t, err)
}

func TestEnsureSchemaWithRetry_Retries(t *testing.T) {
	calls := 0
	ensure := func(context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("schema error")
		}
		return nil
	}
	err := app.EnsureSchemaWithRetry(context.Background(), ensure, 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestEnsureSchemaWithRetry_Fail(t *testing.T) {
	calls := 0
	ensure := func(context.Context) error {
		calls++
		return errors.New("permanent error")
	}
	err := app.EnsureSchemaWithRetry(context.Background(), ensure, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestBootstrap_UnreachableDatabase(t *testing.T) {
	cfg := &config.Config{
		DBHost:                 "invalid-host",
		DBPort:                 5432,
		DBUser:                 "askdocs",
		DBName:                 "askdocs",
		BootstrapRetryAttempts: 1,
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}
