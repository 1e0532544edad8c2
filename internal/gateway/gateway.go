// Package gateway implements the privileged operations the sandboxed UI may
// request. Every operation absorbs its own failures: callers always get a
// value, possibly empty, never an error.
package gateway

import (
	"context"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/loykin/sidecar/internal/metrics"
	"github.com/loykin/sidecar/internal/vault"
)

// Gateway is the capability surface exposed over the message channel.
type Gateway interface {
	DataDir(ctx context.Context) string
	ListFiles(ctx context.Context) []vault.FileMetadata
	OpenFileDialog(ctx context.Context) []string
}

// Anchor reports whether a window exists to parent a native dialog.
type Anchor interface {
	HasWindow() bool
}

// Chooser shows a native multi-file picker. It returns ErrCanceled (or an
// empty list) when the user dismisses it.
type Chooser func(ctx context.Context, title string, filters []Filter) ([]string, error)

type Options struct {
	Fs       afero.Fs // default: the OS filesystem
	Resolver vault.Resolver
	Anchor   Anchor
	Chooser  Chooser // default: native zenity dialog
	Logger   *slog.Logger
}

// Privileged is the default Gateway. It holds no mutable state.
type Privileged struct {
	fs       afero.Fs
	resolver vault.Resolver
	anchor   Anchor
	choose   Chooser
	log      *slog.Logger
}

func New(opts Options) *Privileged {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Chooser == nil {
		opts.Chooser = NativeChooser
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Privileged{
		fs:       opts.Fs,
		resolver: opts.Resolver,
		anchor:   opts.Anchor,
		choose:   opts.Chooser,
		log:      opts.Logger.With("component", "gateway"),
	}
}

// DataDir returns the vault directory path, creating the directory first.
func (g *Privileged) DataDir(context.Context) string {
	dir := g.ensureDir()
	metrics.IncGatewayRequest("data_dir", true)
	return dir
}

// ListFiles returns metadata for the regular files in the vault directory.
func (g *Privileged) ListFiles(context.Context) []vault.FileMetadata {
	dir := g.ensureDir()
	files, err := vault.ListFiles(g.fs, dir)
	metrics.IncGatewayRequest("list_files", err == nil)
	if err != nil {
		g.log.Warn("list vault files", "dir", dir, "error", err)
		return []vault.FileMetadata{}
	}
	return files
}

// OpenFileDialog shows the native chooser anchored to the main window and
// returns the selected absolute paths.
func (g *Privileged) OpenFileDialog(ctx context.Context) []string {
	if g.anchor == nil || !g.anchor.HasWindow() {
		g.log.Debug("file dialog requested without a window")
		metrics.IncGatewayRequest("open_file_dialog", false)
		return []string{}
	}
	paths, err := g.choose(ctx, DialogTitle, Filters)
	switch {
	case err == nil:
		metrics.IncGatewayRequest("open_file_dialog", true)
	case isCanceled(err):
		metrics.IncGatewayRequest("open_file_dialog", true)
		return []string{}
	default:
		g.log.Warn("file dialog failed", "error", err)
		metrics.IncGatewayRequest("open_file_dialog", false)
		return []string{}
	}
	if paths == nil {
		return []string{}
	}
	return paths
}

// ensureDir resolves the vault directory and creates it. A creation failure
// is logged and the path is still returned.
func (g *Privileged) ensureDir() string {
	dir := g.resolver.Path()
	if err := vault.Ensure(g.fs, dir); err != nil {
		g.log.Warn("create vault directory", "dir", dir, "error", err)
	}
	return dir
}

var _ Gateway = (*Privileged)(nil)
