package log

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

func TestInitLoggerWithWriteSyncerJSON(t *testing.T) {
	out := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "info", Format: "json", DisableTimestamp: true}, out)
	require.NoError(t, err)
	require.NotNil(t, props)

	lg.Debug("hidden")
	lg.Info("config updated", FieldComponent("serializer"), zap.Int("changed", 2))
	require.NoError(t, lg.Sync())

	line := out.String()
	assert.NotContains(t, line, "hidden")
	assert.Contains(t, line, `"message":"config updated"`)
	assert.Contains(t, line, `"component":"serializer"`)
	assert.NotContains(t, line, `"time"`)
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, &bufferSyncer{})
	assert.Error(t, err)
}

func TestInitTestLogger(t *testing.T) {
	lg, _, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)
	lg.Debug("visible through t.Log")
}

func TestBinderFallback(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	out := &bufferSyncer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: "json"}, out)
	require.NoError(t, err)
	b.SetLogger(&MLogger{Logger: lg})
	b.Logger().Info("bound")
	assert.Contains(t, out.String(), "bound")
}

func TestCtxFields(t *testing.T) {
	ctx := WithFormat(context.Background(), "msgpack")
	assert.NotNil(t, Ctx(ctx))
	assert.NotSame(t, Ctx(context.Background()), Ctx(ctx))
	assert.NotNil(t, Ctx(nil)) //nolint:staticcheck
}

func TestDomainFields(t *testing.T) {
	out := &bufferSyncer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: "json"}, out)
	require.NoError(t, err)

	ml := (&MLogger{Logger: lg}).With(FieldFormat("cbor"))
	ml.Warn("encode failed", FieldKind("DepthExceeded"), FieldOptions([]string{"encode_max_depth"}))
	line := out.String()
	assert.Contains(t, line, `"format":"cbor"`)
	assert.Contains(t, line, `"kind":"DepthExceeded"`)
	assert.Contains(t, line, `"options":["encode_max_depth"]`)
}

func TestRatedLogging(t *testing.T) {
	l := (&MLogger{Logger: zap.NewNop()}).WithRateGroup("test.rated", 1, 1)
	assert.True(t, l.RatedWarn(1, "first"))
	assert.False(t, l.RatedWarn(1, "second"))
}

func TestLevel(t *testing.T) {
	old := GetLevel()
	defer SetLevel(old)
	SetLevel(zapcore.WarnLevel)
	assert.Equal(t, zapcore.WarnLevel, GetLevel())
}

func TestInitLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	lg, props, err := InitLogger(&Config{Level: "trace", Format: "json", File: FileLogConfig{RootPath: dir, Filename: "vserial.log"}})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())

	lg.Debug("written to file", FieldFormat("yaml"))
	require.NoError(t, lg.Sync())
	data, err := os.ReadFile(filepath.Join(dir, "vserial.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"format":"yaml"`)

	_, _, err = InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: filepath.Dir(dir), Filename: filepath.Base(dir)}})
	assert.Error(t, err)
}
