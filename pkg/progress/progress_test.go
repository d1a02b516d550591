package progress

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCancelable(t *testing.T) {
	c := NewCancelable()
	c.Started()
	c.Progress(42)
	assert.False(t, c.IsCanceled())
	c.Cancel()
	assert.True(t, c.IsCanceled())
	c.Complete()

	started, completed, last := c.State()
	assert.True(t, started)
	assert.True(t, completed)
	assert.Equal(t, float32(42), last)
}

func TestCancelAfter(t *testing.T) {
	c := CancelAfter(2)
	assert.False(t, c.IsCanceled())
	assert.False(t, c.IsCanceled())
	assert.True(t, c.IsCanceled())
	assert.True(t, c.IsCanceled())
}

func TestWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := WithContext(ctx, nil)
	assert.False(t, l.IsCanceled())
	cancel()
	assert.True(t, l.IsCanceled())
}

func TestLoggingAndNoop(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	l := NewLogging(logger, "test")
	l.Started()
	l.Progress(10.5)
	l.Progress(10.7)
	l.Complete()
	_, completed, _ := l.State()
	assert.True(t, completed)

	assert.False(t, Noop.IsCanceled())
	assert.Equal(t, Noop, OrNoop(nil))
}
