package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Username string            `yaml:"username" json:"username"`
	Password string            `yaml:"password" json:"password"`
	Headers  map[string]string `yaml:"headers" json:"headers"`
}

type validatedConfig struct {
	Username string `yaml:"username"`
}

func (c *validatedConfig) Validate() error {
	if c.Username == "" {
		return errors.New("username is required")
	}
	return nil
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0600)
	require.NoError(t, err)
}

func TestReadConfigYamlWithLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yml"), `
username: alice
password: secret
headers:
  accept: text/html
  referer: https://example.com
`)
	writeFile(t, filepath.Join(dir, "config.local.yml"), `
password: override
headers:
  accept: application/json
`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.Username)
	require.Equal(t, "override", cfg.Password)
	require.Equal(t, "application/json", cfg.Headers["accept"])
	require.Equal(t, "https://example.com", cfg.Headers["referer"])
}

func TestReadConfigJson5AndEnv(t *testing.T) {
	t.Setenv("DICTSYNC_TEST_PASSWORD", "from-env")

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		username: "bob",
		password: "$DICTSYNC_TEST_PASSWORD",
	}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "bob", cfg.Username)
	require.Equal(t, "from-env", cfg.Password)
}

func TestReadConfigNotFound(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "missing.yml"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigValidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yml"), "username: \"\"\nother: 1\n")

	_, err := ReadConfig[validatedConfig](filepath.Join(dir, "config.yml"))
	require.ErrorContains(t, err, "username is required")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".dict/cookies.json"), ExpandHome("~/.dict/cookies.json"))
	require.Equal(t, "/tmp/cookies.json", ExpandHome("/tmp/cookies.json"))
}
