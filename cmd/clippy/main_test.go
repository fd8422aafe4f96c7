package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup points the global flags at a config file in a temp dir and
// captures stdout.
func setup(t *testing.T) (dir string, out *bytes.Buffer) {
	t.Helper()
	dir = t.TempDir()

	cfgFile := filepath.Join(dir, "clippy.yaml")
	content := fmt.Sprintf(`
browser:
  profile_dir: %s
lock:
  path: %s
logging:
  dir: %s
  console: false
`, filepath.Join(dir, "profile"), filepath.Join(dir, "browser.lock"), filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0600))

	oldConfig, oldEnv, oldOut := configPath, envFile, stdout
	t.Cleanup(func() { configPath, envFile, stdout = oldConfig, oldEnv, oldOut })

	out = &bytes.Buffer{}
	configPath, envFile, stdout = cfgFile, "", out
	return dir, out
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "follow", "search", "follow-keywords", "post", "job", "login", "unlock", "config"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("env-file"))
	assert.NotNil(t, postCmd.Flags().Lookup("theme"))
	assert.NotNil(t, followCmd.Flags().Lookup("lock-wait"))
	assert.Nil(t, unlockCmd.Flags().Lookup("lock-wait"))
}

func TestArgsValidation(t *testing.T) {
	assert.Error(t, followCmd.Args(followCmd, nil))
	assert.Error(t, followCmd.Args(followCmd, []string{"a", "b"}))
	assert.NoError(t, followCmd.Args(followCmd, []string{"https://farcaster.xyz/dwr"}))
	assert.Error(t, searchCmd.Args(searchCmd, nil))
	assert.Error(t, runCmd.Args(runCmd, []string{"extra"}))
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	_, out := setup(t)
	t.Setenv("NEYNAR_API_KEY", "NEYNAR-SECRET-KEY")

	require.NoError(t, runConfig(configCmd, nil))
	assert.Contains(t, out.String(), "base_url: https://farcaster.xyz")
	assert.Contains(t, out.String(), "api_key: NEYN****")
	assert.NotContains(t, out.String(), "NEYNAR-SECRET-KEY")
}

func TestUnlockCommand(t *testing.T) {
	dir, out := setup(t)
	lockPath := filepath.Join(dir, "browser.lock")

	require.NoError(t, runUnlock(unlockCmd, nil))
	assert.Contains(t, out.String(), "not locked")

	require.NoError(t, os.WriteFile(lockPath, []byte("follow-1234"), 0600))
	out.Reset()
	require.NoError(t, runUnlock(unlockCmd, nil))
	assert.Contains(t, out.String(), `removed lock held by "follow-1234"`)
	assert.NoFileExists(t, lockPath)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setup(t)
	oldLevel, oldHeadful := logLevel, headful
	t.Cleanup(func() { logLevel, headful = oldLevel, oldHeadful })

	logLevel, headful = "debug", true
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Browser.Headless)

	logLevel = "chatty"
	_, err = loadConfig()
	assert.Error(t, err)
}
