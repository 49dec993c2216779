package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
programs:
  - id: go-backend
    title: Go Backend
    stage_tasks:
      - https://forms.example/week-1
      - ""
    units: [api, storage]
    duration_units: 2
    details_attachment: go-backend.pdf
  - id: devops
    title: DevOps
    duration_units: 1
    details_attachment: /srv/pdfs/devops.pdf
`

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cat, err := Load(path, Options{AttachmentsDir: "/srv/attachments"})
	require.NoError(t, err)

	p, err := cat.Get("go-backend")
	require.NoError(t, err)
	assert.Equal(t, "Go Backend", p.Title)
	assert.Equal(t, 2, p.TotalStages(4))
	assert.Equal(t, 2, p.TotalUnits())
	assert.Equal(t, 2, p.DurationUnits)
	assert.Equal(t, "/srv/attachments/go-backend.pdf", p.DetailsAttachment)
	assert.Equal(t, "Week 2 assignment", p.TaskFor(2))

	d, err := cat.Get("devops")
	require.NoError(t, err)
	assert.Equal(t, "/srv/pdfs/devops.pdf", d.DetailsAttachment)
}

func TestLoad_Builtin(t *testing.T) {
	cat, err := Load("", Options{AttachmentsDir: "attachments"})
	require.NoError(t, err)
	assert.Len(t, cat.List(), 9)

	p, err := cat.Get("web-development")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("attachments", "web-dev.pdf"), p.DetailsAttachment)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(""))
	assert.Error(t, err)

	_, err = Parse([]byte("programs: []"))
	assert.Error(t, err)

	_, err = Parse([]byte("programs:\n  - id: x\n    titel: typo\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestLoad_InvalidProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("programs:\n  - id: x\n    title: X\n    duration_units: 0\n"), 0o644))

	_, err := Load(path, Options{})
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	assert.Error(t, err)
}

func TestLoad_DefaultDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("programs:\n  - id: x\n    title: X\n"), 0o644))

	cat, err := Load(path, Options{DefaultDurationUnits: 2})
	require.NoError(t, err)

	p, err := cat.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 2, p.DurationUnits)
}
