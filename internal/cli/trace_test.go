package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/testutil"
)

func traceEvents() []ir.Event {
	return []ir.Event{
		testutil.AllocZeroed(ir.Yes, 0x1000, 64, 16),
		testutil.Realloc(ir.No, testutil.Region(0x1000, 64, 16), testutil.Region(0x2000, 128, 16)),
		ir.ReallocFailed{},
		ir.Free{Request: ir.Request{
			Region:    ir.NewRegion(0x2000, 128, 16),
			Backtrace: ir.Backtrace{"main.shutdown"},
		}},
	}
}

func TestTraceText(t *testing.T) {
	path := testutil.WriteEventsFile(t, traceEvents()...)

	out, err := executeRoot(t, "trace", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "[   0] alloc_zeroed"))
	assert.True(t, strings.HasSuffix(lines[0], "0x1000-0x1040 (size: 64, align: 16) zeroed=yes"))
	assert.True(t, strings.HasPrefix(lines[1], "[   1] realloc"))
	assert.True(t, strings.HasSuffix(lines[1],
		"0x1000-0x1040 (size: 64, align: 16) -> 0x2000-0x2080 (size: 128, align: 16) relocated=no"))
	assert.Equal(t, "[   2] realloc_failed", lines[2])
	assert.True(t, strings.HasSuffix(lines[3], "0x2000-0x2080 (size: 128, align: 16)"))
	assert.NotContains(t, out, "main.shutdown")
}

func TestTraceVerboseShowsBacktraces(t *testing.T) {
	path := testutil.WriteEventsFile(t, traceEvents()...)

	out, err := executeRoot(t, "-v", "trace", path)
	require.NoError(t, err)
	assert.Contains(t, out, "\n        main.shutdown\n")
}

func TestTraceKindFilter(t *testing.T) {
	path := testutil.WriteEventsFile(t, traceEvents()...)

	out, err := executeRoot(t, "--format", "json", "trace", path, "--kind", "free")
	require.NoError(t, err)

	var result TraceResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 4, result.Total)
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, 3, result.Timeline[0].Seq, "sequence numbers keep stream positions")
	assert.Equal(t, ir.KindFree, result.Timeline[0].Kind)
	assert.Equal(t, ir.Backtrace{"main.shutdown"}, result.Timeline[0].Backtrace)
}

func TestTraceJSONRecords(t *testing.T) {
	path := testutil.WriteEventsFile(t, traceEvents()...)

	out, err := executeRoot(t, "--format", "json", "trace", path)
	require.NoError(t, err)

	var result TraceResult
	decodeResponse(t, out, &result)
	require.Len(t, result.Timeline, 4)

	for i, te := range result.Timeline {
		assert.Equal(t, i, te.Seq)
		e, err := te.EventRecord.Event()
		require.NoError(t, err)
		assert.Equal(t, traceEvents()[i], e)
	}
}

func TestTraceNoMatches(t *testing.T) {
	path := testutil.WriteEventsFile(t, traceEvents()...)

	out, err := executeRoot(t, "trace", path, "--kind", "alloc_failed")
	require.NoError(t, err)
	assert.Equal(t, "No events found in "+path+"\n", out)
}

func TestTraceUnknownKind(t *testing.T) {
	path := testutil.WriteEventsFile(t, traceEvents()...)

	out, err := executeRoot(t, "--format", "json", "trace", path, "--kind", "mmap")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUsage, resp.Error.Code)
}
