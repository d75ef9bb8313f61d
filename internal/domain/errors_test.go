package domain

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNetworkError(t *testing.T) {
	err := NetworkError(context.DeadlineExceeded, "error executing query")

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "error executing query: context deadline exceeded", err.Error())

	wrapped := errors.Wrap(err, "failed to save status")
	assert.True(t, errors.Is(wrapped, ErrNetwork))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
}
