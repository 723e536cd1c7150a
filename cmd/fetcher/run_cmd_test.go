package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, "invoices", &models.Summary{
		RunID:    "r1",
		Messages: 1200,
		Matched:  3,
		Done:     2,
		Failed:   1,
		Bytes:    2_500_000,
		Duration: 1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "invoices: run r1 finished in 1.5s")
	assert.Contains(t, out, "messages 1,200, matched 3, skipped 0")
	assert.Contains(t, out, "done 2 (2.5 MB), failed 1")
}

func TestPrintJobs(t *testing.T) {
	var buf bytes.Buffer
	printJobs(&buf, []models.JobResult{
		{Status: models.StatusDone, Bytes: 2048, Destination: "a.pdf"},
		{Status: models.StatusFailed, Size: -1, Retries: 2, Destination: "b.pdf", Error: "boom"},
	})

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "b.pdf")
	assert.Contains(t, out, "boom")
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"run", "preview", "serve", "folders", "presets", "oauth2", "credentials"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
