package cmd

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetReadOnly(t *testing.T) {
	t.Helper()
	readOnly = false
	viper.Set("readonly", false)
	require.NoError(t, rootCmd.PersistentFlags().Set("readonly", "false"))
}

func TestImport_ReadOnly_Blocks(t *testing.T) {
	resetReadOnly(t)
	defer resetReadOnly(t)

	_, _, err := execute(t, "--readonly", "import", "exports/parks.json")
	require.Error(t, err)
	require.Contains(t, err.Error(), "readonly")
}

func TestMigrate_ReadOnly_BlocksLiveRun(t *testing.T) {
	resetReadOnly(t)
	defer resetReadOnly(t)
	src, dst := clusters(t, "parks")
	dir := t.TempDir()

	args := append([]string{"--readonly", "migrate"}, clusterArgs(src, dst)...)
	args = append(args, "--state-file", filepath.Join(dir, "state.json"))
	_, _, err := execute(t, args...)

	require.Error(t, err)
	require.Contains(t, err.Error(), "readonly")
	assert.Zero(t, src.Requests(http.MethodGet, "/"))
	assert.NoFileExists(t, filepath.Join(dir, "state.json"))
}

func TestMigrate_ReadOnly_AllowsDryRun(t *testing.T) {
	resetReadOnly(t)
	defer resetReadOnly(t)
	src, dst := clusters(t, "parks")

	args := append([]string{"--readonly", "migrate", "--dry-run"}, clusterArgs(src, dst)...)
	stdout, _, err := execute(t, args...)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Dry run: 1 of 1")
}
