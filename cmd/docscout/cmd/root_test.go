package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	// Then: it should show usage information
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "docscout", "Help should mention program name")
	assert.Contains(t, output, "Usage:", "Help should show usage")
}

func TestRootCmd_ShowsVersion(t *testing.T) {
	// Given: a root command

	// When: executing with --version
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	// Then: it should show version
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "docscout version", "Version output should mention program name")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// When: checking available commands
	var commandNames []string
	for _, subcmd := range cmd.Commands() {
		commandNames = append(commandNames, subcmd.Name())
	}

	// Then: the core subcommands should exist
	assert.Contains(t, commandNames, "ingest", "Should have ingest subcommand")
	assert.Contains(t, commandNames, "search", "Should have search subcommand")
	assert.Contains(t, commandNames, "status", "Should have status subcommand")
	assert.Contains(t, commandNames, "version", "Should have version subcommand")
}

func TestRootCmd_HasDebugFlag(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// Then: it should have --debug flag
	flag := cmd.PersistentFlags().Lookup("debug")
	assert.NotNil(t, flag, "Should have --debug flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestSearchCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing search --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"search", "--help"})

	err := cmd.Execute()

	// Then: it should show search usage
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "search", "Search help should mention search")
	assert.Contains(t, output, "--kind", "Search help should list the kind filter")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// Given: a root command

	// When: executing search without arguments
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"search"})

	err := cmd.Execute()

	// Then: it should fail with a usage error
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "arg"), "Error should mention missing argument")
}

func TestStripMarks(t *testing.T) {
	assert.Equal(t, "invoice 4821 paid",
		stripMarks("<mark>invoice</mark> <mark>4821</mark>  paid"))
	assert.Equal(t, "plain", stripMarks("plain"))
}
