package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/testutil"
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// executeRoot runs the full command tree, so global flags apply.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, NewRootCommand(), args...)
}

// decodeResponse parses a JSON envelope and decodes its data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()

	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil {
		require.NotEmpty(t, raw.Data, "response has no data: %s", out)
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// cleanEvents allocates and frees one 64-byte region.
func cleanEvents() []ir.Event {
	return []ir.Event{
		testutil.Alloc(0x1000, 64, 16),
		testutil.Free(0x1000, 64, 16),
	}
}

// leakyEvents leaves the region at 0x2000 live; peak is 96 bytes.
func leakyEvents() []ir.Event {
	return []ir.Event{
		testutil.Alloc(0x1000, 64, 16),
		testutil.Alloc(0x2000, 32, 8),
		testutil.Free(0x1000, 64, 16),
	}
}

// brokenEvents frees a region that was never granted between a clean
// alloc and free.
func brokenEvents() []ir.Event {
	return []ir.Event{
		testutil.Alloc(0x1000, 64, 16),
		testutil.Free(0x3000, 32, 8),
		testutil.Free(0x1000, 64, 16),
	}
}
