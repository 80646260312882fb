//go:build unit

package logger_test

import (
	"testing"

	"github.com/hugolhafner/go-lanes/logger"
	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	level logger.LogLevel
	msg   string
	kv    []any
}

func (c *captureLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (c *captureLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	c.level = level
	c.msg = msg
	c.kv = kv
}

func TestWrapLogger_Levels(t *testing.T) {
	capture := &captureLogger{}
	l := logger.WrapLogger(capture)

	l.Warn("queue is backing up", "depth", 42)

	assert.Equal(t, logger.WarnLevel, capture.level)
	assert.Equal(t, "queue is backing up", capture.msg)
	assert.Equal(t, []any{"depth", 42}, capture.kv)
}

func TestWrapLogger_WithPrefixesFields(t *testing.T) {
	capture := &captureLogger{}
	l := logger.WrapLogger(capture).With("component", "pool")

	l.Info("started", "lanes", 3)

	assert.Equal(t, []any{"component", "pool", "lanes", 3}, capture.kv)

	// With is additive and does not mutate the parent
	l.With("lane", 1).Debug("item")
	assert.Equal(t, []any{"component", "pool", "lane", 1}, capture.kv)

	l.Info("again")
	assert.Equal(t, []any{"component", "pool"}, capture.kv)
}
