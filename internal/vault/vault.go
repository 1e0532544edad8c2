// Package vault locates the per-user upload directory shared with the
// backend and reads file metadata from it.
package vault

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// DefaultProduct is the namespace directory under the OS application-data root.
const DefaultProduct = "PrivatixAI"

// FileMetadata describes one regular file in the vault directory.
type FileMetadata struct {
	Name         string `json:"name"`
	SizeBytes    uint64 `json:"sizeBytes"`
	ModifiedAtMs uint64 `json:"modifiedAtMs"`
	Extension    string `json:"extension"`
}

// CurrentOS reports the host OS family used by Resolve.
func CurrentOS() string { return runtime.GOOS }

// ProductRoot returns the product's application-data root for the given OS:
//
//	darwin:  <home>/Library/Application Support/<product>
//	windows: <appData or home>/<product>
//	other:   <home>/.local/share/<product>
func ProductRoot(goos, home, appData, product string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", product)
	case "windows":
		base := appData
		if base == "" {
			base = home
		}
		return filepath.Join(base, product)
	default:
		return filepath.Join(home, ".local", "share", product)
	}
}

// Resolve returns the vault directory (<product root>/data/uploads). It is a
// pure function of its inputs.
func Resolve(goos, home, appData, product string) string {
	return filepath.Join(ProductRoot(goos, home, appData, product), "data", "uploads")
}

// Resolver computes the vault directory for the running host.
type Resolver struct {
	Product string
	Dir     string // explicit override; wins over the per-OS location
}

// Path returns the vault directory. It never returns an empty string.
func (r Resolver) Path() string {
	if r.Dir != "" {
		return r.Dir
	}
	product := r.Product
	if product == "" {
		product = DefaultProduct
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return Resolve(CurrentOS(), home, os.Getenv("APPDATA"), product)
}

// Default resolves the vault directory for the running host and the default
// product.
func Default() string { return Resolver{}.Path() }

// Ensure creates path and its parents. An existing directory is success.
func Ensure(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(path, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

// ListFiles enumerates regular files in dir. Directories and symlinks are
// skipped, entries whose metadata cannot be read are skipped.
func ListFiles(fs afero.Fs, dir string) ([]FileMetadata, error) {
	infos, err := readDirNoFollow(fs, dir)
	if err != nil {
		return nil, err
	}
	files := make([]FileMetadata, 0, len(infos))
	for _, fi := range infos {
		if !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, FileMetadata{
			Name:         fi.Name(),
			SizeBytes:    uint64(max(fi.Size(), 0)),
			ModifiedAtMs: uint64(max(fi.ModTime().UnixMilli(), 0)),
			Extension:    Extension(fi.Name()),
		})
	}
	return files, nil
}

// Extension returns the text after the last '.', or "" when there is none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// readDirNoFollow lists dir with lstat semantics so symlinks keep their own
// mode instead of the target's.
func readDirNoFollow(fs afero.Fs, dir string) ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	lstater, ok := fs.(afero.Lstater)
	if !ok {
		return infos, nil
	}
	out := make([]os.FileInfo, 0, len(infos))
	for _, fi := range infos {
		li, _, err := lstater.LstatIfPossible(filepath.Join(dir, fi.Name()))
		if err != nil {
			continue
		}
		out = append(out, li)
	}
	return out, nil
}
