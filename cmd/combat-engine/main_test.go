package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/combat-engine/pkg/utils"
)

const testRecipes = `
recipes:
  - id: slash
    groups:
      - id: windup
        steps:
          - "wait(duration=0.01)"
      - id: impact/hit
        steps:
          - "timed_hit(kind=instant, on_perfect=branch:finisher)"
      - id: runback
        steps:
          - "wait(duration=0.01)"
      - id: finisher
        steps:
          - "wait(duration=0.01)"
`

func writeRecipes(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRecipes), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "combat-engine version "+Version)
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", "wait(duration=0.2) | emit(topic=hit)")
	require.NoError(t, err)

	executor, err := utils.GetString([]byte(out), 0, "executor")
	require.NoError(t, err)
	assert.Equal(t, "wait", executor)

	topic, err := utils.GetString([]byte(out), 1, "params", "topic")
	require.NoError(t, err)
	assert.Equal(t, "hit", topic)
}

func TestParseCommandCanonical(t *testing.T) {
	out, err := execute(t, "parse", "--canonical", "wait(duration=0.2)|emit(topic=hit)")
	require.NoError(t, err)
	assert.Contains(t, out, " | ")
	assert.Contains(t, out, "emit(")
}

func TestParseCommandInvalid(t *testing.T) {
	_, err := execute(t, "parse", "wait(duration=0.2")
	assert.Error(t, err)
}

func TestCatalogCommand(t *testing.T) {
	path := writeRecipes(t)

	out, err := execute(t, "catalog", path)
	require.NoError(t, err)
	assert.Contains(t, out, "slash")
	assert.Contains(t, out, "共 1 个配方")

	out, err = execute(t, "catalog", "--json", path)
	require.NoError(t, err)
	id, err := utils.GetString([]byte(out), 0, "groups", 1, "id")
	require.NoError(t, err)
	assert.Equal(t, "impact/hit", id)

	out, err = execute(t, "catalog", "--dump", path)
	require.NoError(t, err)
	assert.Contains(t, out, "recipes:")
	assert.Contains(t, out, "finisher")
}

func TestCatalogCommandMissingFile(t *testing.T) {
	_, err := execute(t, "catalog", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSimulateCommandJSON(t *testing.T) {
	path := writeRecipes(t)

	out, err := execute(t, "simulate", "slash",
		"--quiet",
		"--recipes", path,
		"--set", "timed_hit.instant_judgment=perfect",
		"--set", "dispatcher.inline=true",
		"--iterations", "2",
		"--json",
	)
	require.NoError(t, err)

	report, err := utils.FromJSONBytes[simulateReport]([]byte(out))
	require.NoError(t, err)
	require.Len(t, report.Runs, 2)
	for _, run := range report.Runs {
		assert.Equal(t, []string{"windup", "impact/hit", "finisher"}, run.Groups)
		assert.Equal(t, 1, run.Branches)
		assert.False(t, run.Cancelled)
		assert.Equal(t, []string{"windup", "impact"}, run.Flags)
	}
	require.NotNil(t, report.Metrics)
	assert.Contains(t, report.Metrics.Metrics, "recipes")
}

func TestSimulateCommandText(t *testing.T) {
	path := writeRecipes(t)

	out, err := execute(t, "simulate", "slash",
		"-q",
		"--recipes", path,
		"--set", "dispatcher.inline=true",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "#1 slash")
	assert.Contains(t, out, "[hero] windup")
	assert.Contains(t, out, "metrics:")
}

func TestSimulateCommandPerTargetImpact(t *testing.T) {
	path := writeRecipes(t)

	out, err := execute(t, "simulate", "slash",
		"-q",
		"--recipes", path,
		"--set", "timed_hit.instant_judgment=good",
		"--set", "dispatcher.inline=true",
		"--targets", "2",
		"--json",
	)
	require.NoError(t, err)

	report, err := utils.FromJSONBytes[simulateReport]([]byte(out))
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)
	run := report.Runs[0]
	assert.Equal(t, []string{"windup", "impact/hit", "runback", "finisher"}, run.Groups)
	assert.Equal(t, []string{"windup", "impact@enemy-1", "impact@enemy-2", "runback"}, run.Flags)
}

func TestSimulateCommandErrors(t *testing.T) {
	path := writeRecipes(t)

	_, err := execute(t, "simulate", "unknown", "-q", "--recipes", path)
	assert.Error(t, err)

	_, err = execute(t, "simulate", "slash", "-q", "--recipes", path, "--iterations", "0")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "slash", "-q", "--set", "no-equals-sign")
	assert.Error(t, err)
}
