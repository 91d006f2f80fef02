package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "roundup.db")
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "roundup", cmd.Use)
	assert.Contains(t, cmd.Long, "live scorecards")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"ingest"}, {"replay"}, {"serve"}, {"results"},
		{"checkin", "add"}, {"checkin", "list"},
		{"players", "add"}, {"players", "list"}, {"players", "sync"},
		{"event", "load"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "players", "list", "--db", tempDB(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestEnvFileSuppliesDatabase(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-env.db")
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(EnvDB+"="+db+"\n"), 0o600))
	t.Setenv(EnvDB, "")
	os.Unsetenv(EnvDB)

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", envFile, "players", "add", "ada"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(db)
	assert.NoError(t, err, "database created at the path from the env file")
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	require.NoError(t, loadEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestFromEnv(t *testing.T) {
	t.Setenv("ROUNDUP_TEST_VALUE", "env")

	assert.Equal(t, "flag", fromEnv("flag", "ROUNDUP_TEST_VALUE", "def"))
	assert.Equal(t, "env", fromEnv("", "ROUNDUP_TEST_VALUE", "def"))
	assert.Equal(t, "def", fromEnv("", "ROUNDUP_TEST_UNSET", "def"))
}
