package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesThroughZap(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	prev := Log.Zap()
	SetZap(zap.New(core))
	t.Cleanup(func() { SetZap(prev) })

	Log.Infof("[Engine] iteration %d", 3)
	Log.Warnf("[Memory] skipped")
	Log.Debugf("[Audit] %s", "detail")
	Log.Warnw("compliance", "tool", "delete_invoice")

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "[Engine] iteration 3", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "[Audit] detail", entries[2].Message)
	assert.Equal(t, "delete_invoice", entries[3].ContextMap()["tool"])
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	prev := Log.Zap()
	t.Cleanup(func() { SetZap(prev) })

	assert.Error(t, Configure("loud", "json"))
	assert.NoError(t, Configure("debug", "json"))
	assert.NoError(t, Configure("", "console"))
}
