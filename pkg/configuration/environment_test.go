package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "LOAN_SDK_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "loan")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("LOAN_SDK_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("LOAN_SDK_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("LOAN_SDK_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestLoad_DefaultsAndDerivedFields(t *testing.T) {
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "app.log"))
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "loans_test")

	c, err := Load()
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	require.Contains(t, c.Database.Opts, "host=db.internal")
	require.Contains(t, c.Database.Opts, "dbname=loans_test")
	require.Equal(t, 3, c.TaskQueue.MaxRetries)
	require.Equal(t, 30*time.Second, c.TaskQueue.BaseBackoff)
	require.Equal(t, 255, c.UserAgentMaxLen)
	require.False(t, c.Audit.FailMutation)
	require.Equal(t, "http://www.mismo.org/residential/2009/schemas", c.Import.NamespaceURI)
	require.NotNil(t, c.Logger())
}

func TestLoad_RejectsInvalidGroups(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown task backend": {"TASKQUEUE_BACKEND": "kafka"},
		"backoff inverted":     {"TASKQUEUE_BASE_BACKOFF": "1m", "TASKQUEUE_MAX_BACKOFF": "1s"},
		"redis without url":    {"RATE_LIMIT_STORAGE": "redis"},
		"empty namespace":      {"IMPORT_MISMO_NAMESPACE": " "},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "app.log"))
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	c := &Configuration{Origin: "http://localhost:3200"}
	require.Equal(t, []string{"http://localhost:3200"}, c.AllowedOrigins())

	c.CORSOrigins = "https://a.example, https://b.example,"
	require.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
