package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	messages []string
}

func (l *testLogger) Debugf(format string, _ ...any) { l.messages = append(l.messages, format) }
func (l *testLogger) Infof(format string, _ ...any)  { l.messages = append(l.messages, format) }
func (l *testLogger) Warnf(format string, _ ...any)  { l.messages = append(l.messages, format) }

func writeEnv(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestEnvLoader_OverrideFile(t *testing.T) {
	dir := t.TempDir()

	writeEnv(t, dir, ".env", "BATCH_SIZE=5\nDB_DIALECT=mysql\nTEST_ONLY_KEY=base\n")
	writeEnv(t, dir, ".local.env", "DB_DIALECT=sqlite\n")

	t.Cleanup(func() {
		os.Unsetenv("BATCH_SIZE")
		os.Unsetenv("DB_DIALECT")
		os.Unsetenv("TEST_ONLY_KEY")
	})

	conf := NewEnvFile(dir, &testLogger{})

	assert.Equal(t, "5", conf.Get("BATCH_SIZE"))
	assert.Equal(t, "sqlite", conf.Get("DB_DIALECT"))
	assert.Equal(t, "base", conf.GetOrDefault("TEST_ONLY_KEY", "x"))
}

func TestEnvLoader_ProcessEnvWins(t *testing.T) {
	dir := t.TempDir()

	writeEnv(t, dir, ".env", "DB_NAME=from_file\n")
	t.Setenv("DB_NAME", "from_env")

	conf := NewEnvFile(dir, &testLogger{})

	assert.Equal(t, "from_env", conf.Get("DB_NAME"))
}

func TestEnvLoader_AppEnvFile(t *testing.T) {
	dir := t.TempDir()

	writeEnv(t, dir, ".env", "DB_HOST=localhost\n")
	writeEnv(t, dir, ".staging.env", "DB_HOST=staging-db\n")
	t.Setenv("APP_ENV", "staging")

	t.Cleanup(func() { os.Unsetenv("DB_HOST") })

	conf := NewEnvFile(dir, &testLogger{})

	assert.Equal(t, "staging-db", conf.Get("DB_HOST"))
}

func TestEnvLoader_MissingFolder(t *testing.T) {
	l := &testLogger{}

	conf := NewEnvFile(filepath.Join(t.TempDir(), "absent"), l)

	assert.Equal(t, "fallback", conf.GetOrDefault("BATCHROW_UNSET_KEY", "fallback"))
	assert.Empty(t, l.messages)
}

func TestMockConfig(t *testing.T) {
	conf := NewMockConfig(map[string]string{"BATCH_SIZE": "10", "EMPTY": ""})

	assert.Equal(t, "10", conf.Get("BATCH_SIZE"))
	assert.Equal(t, "7", conf.GetOrDefault("EMPTY", "7"))
	assert.Equal(t, "x", conf.GetOrDefault("MISSING", "x"))
}
