package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "memory update failed",
		Data:    logrus.Fields{"requestId": "r1", "conversation": "c1"},
	}
	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-01 12:30:00.000] [warning] memory update failed conversation=c1 requestId=r1\n", string(out))
}

func TestHookWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(os.Stderr)
	hook := NewHook(dir, "app")
	logger.AddHook(hook)

	logger.Info("hello")
	require.NoError(t, hook.Close())

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, date, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[info] hello")
}

func TestLoadConfig(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LLM_MODEL=gpt-4o\nRESERVE_FRACTION=0.5\n"), 0o600))
	t.Setenv("PORT", "9090")
	t.Setenv("MEMORY_ENABLED", "false")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("LLM_MODEL", "")
	os.Unsetenv("LLM_MODEL")
	t.Setenv("RESERVE_FRACTION", "")
	os.Unsetenv("RESERVE_FRACTION")

	cfg := LoadConfig(envFile)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "gpt-4o", cfg.LLMModel)
	assert.InDelta(t, 0.5, cfg.ReserveFraction, 1e-9)
	assert.False(t, cfg.MemoryEnabled)
	assert.Equal(t, "@every 10m", cfg.MemoryReconcileSpec)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "3306", User: "u", Password: "p", DBName: "chat"}
	assert.Equal(t, "u:p@tcp(db:3306)/chat?charset=utf8mb4&parseTime=True&loc=UTC", c.DSN())
}
