package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []any{"job", "sweep", "value", 3}, normalize([]any{"job", "sweep", 3}))
	assert.Equal(t, []any{"id", 1}, normalize([]any{42, "x", "id", 1}))
	assert.Empty(t, normalize(nil))
}

func TestNewGocronLogger_DoesNotPanic(t *testing.T) {
	l := NewGocronLogger()
	assert.NotPanics(t, func() {
		l.Debug("tick", "job", "sweep")
		l.Info("odd", 1)
		l.Warn("warn")
		l.Error("boom", "err", "x")
	})
}
