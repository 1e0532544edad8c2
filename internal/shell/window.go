package shell

import (
	"log/slog"
	"sync"
)

// HeadlessHost is a WindowHost without a native toolkit. It tracks window
// presence so the gateway can anchor dialogs and reports focus requests to
// OnFocus, letting an embedding UI runtime react.
type HeadlessHost struct {
	URL     string // UI entry point, logged on open
	OnFocus func()

	mu      sync.Mutex
	open    bool
	focused int
}

func (h *HeadlessHost) Open() error {
	h.mu.Lock()
	h.open = true
	h.mu.Unlock()
	slog.Info("window opened", "url", h.URL)
	return nil
}

func (h *HeadlessHost) Focus() {
	h.mu.Lock()
	h.focused++
	cb := h.OnFocus
	h.mu.Unlock()
	slog.Info("window focused")
	if cb != nil {
		cb()
	}
}

func (h *HeadlessHost) HasWindow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *HeadlessHost) Close() {
	h.mu.Lock()
	h.open = false
	h.mu.Unlock()
}

// Focused returns how many focus requests were handled.
func (h *HeadlessHost) Focused() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.focused
}
