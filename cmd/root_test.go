package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"preview", "apply", "migrate", "runs", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "billing-sync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	f := rootCmd.PersistentFlags().Lookup("format")
	require.NotNil(t, f)
	assert.Equal(t, "table", f.DefValue)
}

func TestApplyCommand_Flags(t *testing.T) {
	for _, name := range []string{"dry-run", "report", "user"} {
		assert.NotNil(t, applyCmd.Flags().Lookup(name), "apply should have --%s flag", name)
	}
	assert.Equal(t, "false", applyCmd.Flags().Lookup("dry-run").DefValue)
}

func TestPreviewCommand_Flags(t *testing.T) {
	f := previewCmd.Flags().Lookup("validate")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}

func TestRunsCommand_Flags(t *testing.T) {
	f := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, f)
	assert.Equal(t, "20", f.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	f := serveCmd.Flags().Lookup("port")
	require.NotNil(t, f)
	assert.Equal(t, "0", f.DefValue)
}

func TestWorkbookCommands_RequireOneArg(t *testing.T) {
	assert.Error(t, previewCmd.Args(previewCmd, nil))
	assert.Error(t, applyCmd.Args(applyCmd, []string{"a.xlsx", "b.xlsx"}))
	assert.NoError(t, applyCmd.Args(applyCmd, []string{"a.xlsx"}))
}
