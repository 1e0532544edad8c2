package gateway

import (
	"context"
	"errors"

	"github.com/ncruces/zenity"
)

const DialogTitle = "Select files"

// Filter is a named group of file extensions. An extension of "*" matches
// every file.
type Filter struct {
	Name       string
	Extensions []string
}

// Filters are offered in this order.
var Filters = []Filter{
	{Name: "Documents", Extensions: []string{"pdf", "txt", "md", "docx", "doc", "rtf", "html", "csv", "json"}},
	{Name: "Audio/Video", Extensions: []string{"mp3", "wav", "m4a", "ogg", "flac", "mp4", "mov", "mkv", "webm", "avi"}},
	{Name: "Subtitles", Extensions: []string{"srt", "vtt"}},
	{Name: "All Files", Extensions: []string{"*"}},
}

// ErrCanceled is returned by choosers when the user dismisses the dialog.
var ErrCanceled = zenity.ErrCanceled

func isCanceled(err error) bool { return errors.Is(err, ErrCanceled) }

// Patterns converts a filter's extensions into glob patterns.
func (f Filter) Patterns() []string {
	out := make([]string, 0, len(f.Extensions))
	for _, ext := range f.Extensions {
		if ext == "*" {
			out = append(out, "*")
			continue
		}
		out = append(out, "*."+ext)
	}
	return out
}

func zenityFilters(filters []Filter) zenity.FileFilters {
	out := make(zenity.FileFilters, 0, len(filters))
	for _, f := range filters {
		out = append(out, zenity.FileFilter{Name: f.Name, Patterns: f.Patterns()})
	}
	return out
}

// NativeChooser opens the platform multi-file dialog.
func NativeChooser(ctx context.Context, title string, filters []Filter) ([]string, error) {
	return zenity.SelectFileMultiple(
		zenity.Context(ctx),
		zenity.Title(title),
		zenityFilters(filters),
	)
}
