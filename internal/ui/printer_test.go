package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"graphseed/internal/ledger"
	"graphseed/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintRepositoriesAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRepositories([]RepositoryRow{
		{ID: "langchain", State: "RUNNING", Statements: 1234},
		{ID: "星球大战", State: "INACTIVE", SizeErr: errors.New("timeout")},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "REPOSITORY  STATE     STATEMENTS", lines[0])
	assert.Equal(t, "langchain   RUNNING   1234", lines[1])
	assert.Equal(t, "星球大战    INACTIVE  ?", lines[2])
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintHistory(nil)
	assert.Equal(t, "No loads recorded.\n", buf.String())

	buf.Reset()
	p.PrintHistory([]ledger.LoadRecord{{
		Path:       "/data/starwars-data.trig",
		Repository: "langchain",
		SHA256:     strings.Repeat("ab", 32),
		Size:       2048,
		Status:     ledger.LoadLoaded,
		LoadedAt:   time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "langchain")
	assert.Contains(t, out, "abababababab")
	assert.NotContains(t, out, strings.Repeat("ab", 32))
	assert.Contains(t, out, " - ")
}

func TestPrintServerStatusAndSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintServerStatus("http://localhost:7200", true, "")
	p.PrintServerStatus("http://localhost:7200", false, "connection refused")
	p.PrintSummary(Summary{Loaded: 2, Skipped: 1, Failed: 1, Bytes: 10, Duration: 1500 * time.Millisecond})

	assert.Equal(t, "[ ✓ ] http://localhost:7200 (ready)\n"+
		"[ ✕ ] http://localhost:7200 (not ready: connection refused)\n"+
		"2 loaded, 1 skipped, 1 failed (10 bytes in 1.5s)\n", buf.String())
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "ok", stripANSI("\x1b[32;1mok\x1b[0m"))
	assert.Equal(t, 2, displayWidth("\x1b[31m星\x1b[0m"))
}

func TestConsoleWritesPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewMockLogger()
	c := NewConsole(log, &buf)

	c.StartProgress("Waiting")
	c.StopProgress("Waiting")
	c.WriteLine("%d files", 3)
	c.Success("loaded %s", "a.ttl")

	assert.Equal(t, "3 files\n", buf.String())
	assert.True(t, log.HasEntry(logger.LevelInfo, "✓ loaded a.ttl"))
}
