package vault

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		goos, home, appData string
		want                string
	}{
		{"darwin", "/Users/ana", "", filepath.Join("/Users/ana", "Library", "Application Support", "PrivatixAI", "data", "uploads")},
		{"windows", `C:\Users\ana`, `C:\Users\ana\AppData\Roaming`, filepath.Join(`C:\Users\ana\AppData\Roaming`, "PrivatixAI", "data", "uploads")},
		{"windows", `C:\Users\ana`, "", filepath.Join(`C:\Users\ana`, "PrivatixAI", "data", "uploads")},
		{"linux", "/home/ana", "/ignored", filepath.Join("/home/ana", ".local", "share", "PrivatixAI", "data", "uploads")},
		{"freebsd", "/home/ana", "", filepath.Join("/home/ana", ".local", "share", "PrivatixAI", "data", "uploads")},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			got := Resolve(tt.goos, tt.home, tt.appData, DefaultProduct)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Resolve(tt.goos, tt.home, tt.appData, DefaultProduct), "must be deterministic")
		})
	}
}

func TestResolverPath(t *testing.T) {
	assert.Equal(t, "/srv/vault", Resolver{Dir: "/srv/vault"}.Path())
	p := Resolver{}.Path()
	assert.NotEmpty(t, p)
	assert.Equal(t, "uploads", filepath.Base(p))
	assert.Contains(t, p, DefaultProduct)
	assert.Equal(t, p, Default())
}

func TestEnsureIdempotent(t *testing.T) {
	fs := afero.NewOsFs()
	dir := filepath.Join(t.TempDir(), "PrivatixAI", "data", "uploads")
	require.NoError(t, Ensure(fs, dir))
	require.NoError(t, Ensure(fs, dir))
	assert.DirExists(t, dir)
}

func TestEnsureReadOnlyFails(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	assert.Error(t, Ensure(fs, "/vault/data/uploads"))
}

func TestListFilesEmpty(t *testing.T) {
	fs := afero.NewOsFs()
	dir := filepath.Join(t.TempDir(), "uploads")
	require.NoError(t, Ensure(fs, dir))

	files, err := ListFiles(fs, dir)
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestListFilesReflectsFilesystem(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 4, 2, 11, 30, 0, 0, time.UTC)

	write := func(name string, size int, mtime time.Time) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, make([]byte, size), 0o600))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	write("a.pdf", 10, t1)
	write("notes.txt", 20, t2)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.d"), 0o750))

	files, err := ListFiles(fs, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []FileMetadata{
		{Name: "a.pdf", SizeBytes: 10, ModifiedAtMs: uint64(t1.UnixMilli()), Extension: "pdf"},
		{Name: "notes.txt", SizeBytes: 20, ModifiedAtMs: uint64(t2.UnixMilli()), Extension: "txt"},
	}, files)
}

func TestListFilesSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.md")
	require.NoError(t, os.WriteFile(target, []byte("# hi"), 0o600))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "link.md")))

	files, err := ListFiles(afero.NewOsFs(), dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "real.md", files[0].Name)
}

func TestListFilesMissingDir(t *testing.T) {
	_, err := ListFiles(afero.NewMemMapFs(), "/does/not/exist")
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "gz", Extension("archive.tar.gz"))
	assert.Equal(t, "", Extension("README"))
	assert.Equal(t, "", Extension("trailing."))
	assert.Equal(t, "env", Extension(".env"))
}
