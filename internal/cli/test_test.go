package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leakScenario = `name: one_leak
description: "A region that is never freed is reported as leaked"
events:
  - kind: alloc
    region: { address: 0x40, size: 16, align: 8 }
expect:
  violations:
    - kind: leaked
      address: 0x40
  leaks: 1
  max_memory: 16
`

const wrongScenario = `name: wrong_peak
description: "Expects a peak the events never reach"
events:
  - kind: alloc
    region: { address: 0x40, size: 16, align: 8 }
  - kind: free
    region: { address: 0x40, size: 16, align: 8 }
expect:
  max_memory: 32
`

// scenarioDir writes the named scenarios into a fresh directory.
func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeRoot(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := executeRoot(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := executeRoot(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	out, err := executeRoot(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, result.Total)
	assert.NotNil(t, result.Scenarios)
}

func TestTestCommandPassing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_leak.yaml": leakScenario})

	out, err := executeRoot(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_leak\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total\n")
	assert.Contains(t, out, "✓ All scenarios passed\n")
}

func TestTestCommandFailing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"one_leak.yaml":  leakScenario,
		"wrong_peak.yml": wrongScenario,
	})

	out, err := executeRoot(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Scenarios, 2)
	assert.Equal(t, "one_leak", result.Scenarios[0].Name)
	assert.Equal(t, "wrong_peak", result.Scenarios[1].Name)
	assert.False(t, result.Scenarios[1].Pass)
	assert.NotEmpty(t, result.Scenarios[1].Errors)
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"one_leak.yaml":  leakScenario,
		"wrong_peak.yml": wrongScenario,
	})

	out, err := executeRoot(t, "test", dir, "--filter", "one_*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total\n")
	assert.NotContains(t, out, "wrong_peak")
}

func TestTestCommandBadFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_leak.yaml": leakScenario})

	_, err := executeRoot(t, "test", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\n"})

	out, err := executeRoot(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml\n")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_leak.yaml": leakScenario})
	goldenPath := filepath.Join(dir, "golden", "one_leak.golden")

	out, err := executeRoot(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_leak (golden updated)\n")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	want := "scenario: one_leak\n" +
		"events: 1 (allocs 1, frees 0, reallocs 0, failed 0)\n" +
		"peak: 16 bytes\n" +
		"max_memory: 16 bytes\n" +
		"violations: 1\n" +
		"  - leaked: dangling region (0x40-0x50 (size: 16, align: 8))\n" +
		"leaks: 1\n" +
		"result: pass\n"
	assert.Equal(t, want, string(golden))

	_, err = executeRoot(t, "test", dir)
	require.NoError(t, err, "report matches the golden it just wrote")

	require.NoError(t, os.WriteFile(goldenPath, []byte("stale\n"), 0644))
	out, err = executeRoot(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "report does not match golden file")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := executeRoot(t, "--format", "json", "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)

	var result TestResult
	decodeResponse(t, out, &result)
	assert.Equal(t, result.Total, result.Passed)
	assert.Positive(t, result.Total)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "double_free.golden"),
		goldenFilePath(filepath.Join("scenarios", "double_free.yaml")))
	assert.Equal(t, filepath.Join("golden", "x.golden"), goldenFilePath("x.yml"))
}
