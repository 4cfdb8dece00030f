package logger

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestExecutionID(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 15, 42, 0, time.UTC)
	sum := md5.Sum([]byte("2024-03-01T10:15"))

	assert.Equal(t, hex.EncodeToString(sum[:]), ExecutionID(at))
	assert.Len(t, ExecutionID(at), 32)

	// 同一分钟内相同，跨分钟不同
	assert.Equal(t, ExecutionID(at), ExecutionID(at.Add(10*time.Second)))
	assert.NotEqual(t, ExecutionID(at), ExecutionID(at.Add(time.Minute)))

	// 与时区无关
	berlin := time.FixedZone("CET", 3600)
	assert.Equal(t, ExecutionID(at), ExecutionID(at.In(berlin)))
}

func TestNewLogger(t *testing.T) {
	t.Run("JSON 输出带执行标识", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := newLogger(Config{Level: "info"}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		ForRun(log, "abc", "run-1", "reconcile").Info("governed mailboxes found")
		log.Debug("hidden")
		require.NoError(t, log.Sync())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "governed mailboxes found", entry["message"])
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "abc", entry["exec_id"])
		assert.Equal(t, "run-1", entry["run_id"])
		assert.Equal(t, "reconcile", entry["logger"])
	})

	t.Run("写入日志文件", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "mailgov.log")
		log, err := newLogger(Config{Level: "debug", LogFile: path, MaxSize: 1}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		log.Debug("to file")
		require.NoError(t, log.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
		assert.Contains(t, buf.String(), "to file")
	})

	t.Run("无效级别使用 info", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := newLogger(Config{Level: "loud"}, zapcore.AddSync(&buf))
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
		assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	})
}
