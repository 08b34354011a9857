package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewwphillips/library/internal/config"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no library.yaml or .env
	c, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":4000", c.Addr)
	assert.Equal(t, "/graphql", c.Path)
	assert.Equal(t, 24*time.Hour, c.JWT.TTL)
	assert.Equal(t, "secret", c.Auth.SharedSecret)
	assert.Equal(t, 20*time.Second, c.WS.PingFrequency)
	assert.Empty(t, c.Database.URL)
	assert.False(t, c.Seed)
	assert.False(t, c.Production())
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
addr: ":8080"
jwt:
  ttl: 1h
  secret: from-file
ws:
  pong_timeout: 2s
`), 0o600))
	t.Setenv("LIBRARY_JWT_SECRET", "from-env")
	t.Setenv("LIBRARY_DATABASE_URL", "postgres://localhost/library")
	t.Setenv("LIBRARY_SEED", "true")

	c, err := config.Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, time.Hour, c.JWT.TTL)
	assert.Equal(t, "from-env", c.JWT.Secret, "environment overrides the file")
	assert.Equal(t, 2*time.Second, c.WS.PongTimeout)
	assert.True(t, c.Seed)
	assert.Equal(t, "postgres://localhost/library", c.Database.URL)

	_, err = config.Load(viper.New(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "a config file that was asked for must exist")
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LIBRARY_AUTH_SHARED_SECRET=dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("LIBRARY_AUTH_SHARED_SECRET") })

	c, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", c.Auth.SharedSecret)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIBRARY_ENV", "production")
	_, err := config.Load(viper.New(), "")
	assert.ErrorContains(t, err, "jwt.secret", "the default secret is not allowed in production")

	t.Setenv("LIBRARY_JWT_SECRET", "a real secret")
	c, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	assert.True(t, c.Production())

	c.WS.PingFrequency = 0
	c.Path = "graphql"
	err = c.Validate()
	assert.ErrorContains(t, err, "ws.ping_frequency")
	assert.ErrorContains(t, err, "must start with /")
}
