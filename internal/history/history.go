// Package history keeps the user's recently used item names for
// auto-complete, most recent first.
package history

import "strings"

// maxEntries bounds the history; the least recently used entries fall off.
const maxEntries = 100

// History is a bounded, case-insensitively deduplicated MRU list of item
// names. It is not safe for concurrent use; the owner serializes access.
type History struct {
	names []string
}

// New creates a history preloaded with the given names, most recent first.
func New(names []string) *History {
	h := &History{}
	if len(names) > maxEntries {
		names = names[:maxEntries]
	}
	h.names = append(h.names, names...)
	return h
}

// Names returns the history, most recent first. The returned slice is
// shared; callers must not mutate it.
func (h *History) Names() []string { return h.names }

// Add records a used item name at the front. An existing entry with the
// same name (ignoring case) moves to the front instead of duplicating.
// When the item was renamed, oldName's entry is dropped. Empty names are
// ignored.
func (h *History) Add(name, oldName string) {
	if oldName != "" {
		h.remove(oldName)
	}
	if name == "" {
		return
	}

	h.remove(name)
	h.names = append([]string{name}, h.names...)
	if len(h.names) > maxEntries {
		h.names = h.names[:maxEntries]
	}
}

// Suggest returns history entries matching the prefix, entries starting
// with the term first.
func (h *History) Suggest(term string, limit int) []string {
	if term == "" || limit <= 0 {
		return nil
	}
	lower := strings.ToLower(term)

	var prefixed, contained []string
	for _, name := range h.names {
		ln := strings.ToLower(name)
		switch {
		case strings.HasPrefix(ln, lower):
			prefixed = append(prefixed, name)
		case strings.Contains(ln, lower):
			contained = append(contained, name)
		}
	}

	out := append(prefixed, contained...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (h *History) remove(name string) {
	for i, existing := range h.names {
		if strings.EqualFold(existing, name) {
			h.names = append(h.names[:i], h.names[i+1:]...)
			return
		}
	}
}
