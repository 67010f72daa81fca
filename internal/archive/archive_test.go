package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func newTestArchiver(t *testing.T) (*Archiver, string, string, string) {
	t.Helper()
	root := t.TempDir()
	input := filepath.Join(root, "input")
	archiveDir := filepath.Join(root, "archive")
	output := filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(input, 0o755))

	a := New(archiveDir, output, nil)
	a.now = func() time.Time { return fixedNow }
	return a, input, archiveDir, output
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestArchive_MovesFile(t *testing.T) {
	a, input, archiveDir, _ := newTestArchiver(t)
	src := filepath.Join(input, "screenshot_2024.png")
	writeFile(t, src, "pixels")

	dest, err := a.Archive(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archiveDir, "screenshot_2024.png"), dest)
	assert.NoFileExists(t, src)
	assert.Equal(t, "pixels", readFile(t, dest))
}

func TestArchive_CollisionsNeverOverwrite(t *testing.T) {
	a, input, archiveDir, _ := newTestArchiver(t)
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))
	writeFile(t, filepath.Join(archiveDir, "shot.png"), "first")

	var dests []string
	for _, content := range []string{"second", "third", "fourth"} {
		src := filepath.Join(input, "shot.png")
		writeFile(t, src, content)
		dest, err := a.Archive(src)
		require.NoError(t, err)
		assert.Equal(t, content, readFile(t, dest))
		dests = append(dests, filepath.Base(dest))
	}

	assert.Equal(t, []string{
		"shot_20240309_140507.png",
		"shot_20240309_140507_1.png",
		"shot_20240309_140507_2.png",
	}, dests)
	assert.Equal(t, "first", readFile(t, filepath.Join(archiveDir, "shot.png")))

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestArchive_Errors(t *testing.T) {
	a, input, _, _ := newTestArchiver(t)

	_, err := a.Archive(filepath.Join(input, "missing.png"))
	assert.True(t, domain.IsType(err, domain.ErrorTypeArchive))

	_, err = a.Archive(input)
	assert.True(t, domain.IsType(err, domain.ErrorTypeArchive))
}

func TestArchive_UnwritableDestination(t *testing.T) {
	a, input, archiveDir, _ := newTestArchiver(t)
	// a regular file where the archive folder should be
	writeFile(t, archiveDir, "")
	src := filepath.Join(input, "a.png")
	writeFile(t, src, "x")

	_, err := a.Archive(src)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeArchive))
	assert.FileExists(t, src)
}

func TestPublish(t *testing.T) {
	a, _, _, output := newTestArchiver(t)
	tmpDir := t.TempDir()

	first := filepath.Join(tmpDir, "one.tmp")
	writeFile(t, first, "report 1")
	dest, err := a.Publish(first, "invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(output, "invoice.pdf"), dest)
	assert.NoFileExists(t, first)

	second := filepath.Join(tmpDir, "two.tmp")
	writeFile(t, second, "report 2")
	dest, err = a.Publish(second, "invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(output, "invoice_20240309_140507.pdf"), dest)
	assert.Equal(t, "report 1", readFile(t, filepath.Join(output, "invoice.pdf")))
}

func TestCopyMove_RefusesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	err := copyMove(src, dst)
	assert.ErrorIs(t, err, os.ErrExist)
	assert.Equal(t, "old", readFile(t, dst))

	require.NoError(t, os.Remove(dst))
	require.NoError(t, copyMove(src, dst))
	assert.Equal(t, "new", readFile(t, dst))
	assert.NoFileExists(t, src)
}

func TestCandidates(t *testing.T) {
	var names []string
	for i, name := range Candidates("report.tar.pdf", fixedNow) {
		names = append(names, name)
		if i == 3 {
			break
		}
	}
	assert.Equal(t, []string{
		"report.tar.pdf",
		"report.tar_20240309_140507.pdf",
		"report.tar_20240309_140507_1.pdf",
		"report.tar_20240309_140507_2.pdf",
	}, names)
}

func TestCleanupEmptyDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "full"), 0o755))
	writeFile(t, filepath.Join(dir, "full", "keep.png"), "x")
	writeFile(t, filepath.Join(dir, "top.png"), "x")

	n, err := CleanupEmptyDirs(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, filepath.Join(dir, "empty"))
	assert.DirExists(t, filepath.Join(dir, "full"))
	assert.FileExists(t, filepath.Join(dir, "top.png"))

	_, err = CleanupEmptyDirs(filepath.Join(dir, "nope"), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}
