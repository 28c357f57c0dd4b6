package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"analyze", "batch", "serve", "cache", "workers", "runs", "dataset", "retry"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "insight-engine", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s flag", name)
	}
}

func TestAnalyzeCommand_RequiredFlags(t *testing.T) {
	flag := analyzeCmd.Flags().Lookup("subject")
	require.NotNil(t, flag, "analyze command should have --subject flag")

	for _, flagName := range []string{"website", "region", "modules", "depth"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(flagName), "analyze should have --%s flag", flagName)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("input")
	require.NotNil(t, flag, "batch command should have --input flag")

	limit := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, limit, "batch command should have --limit flag")
	assert.Equal(t, "0", limit.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCacheCommand_HasSubcommands(t *testing.T) {
	cmds := cacheCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"stats", "invalidate", "purge"}
	for _, name := range expected {
		assert.True(t, names[name], "cache should have subcommand %q", name)
	}
}

func TestDatasetCommand_HasSubcommands(t *testing.T) {
	cmds := datasetCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"sync", "status", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "dataset should have subcommand %q", name)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRetryCommand_Flags(t *testing.T) {
	limit := retryCmd.Flags().Lookup("limit")
	require.NotNil(t, limit, "retry command should have --limit flag")
	assert.Equal(t, "20", limit.DefValue)

	assert.NotNil(t, retryCmd.Flags().Lookup("ignore-backoff"), "retry should have --ignore-backoff flag")
}
