package model

// Notifier receives change notifications from lists and items. Mutating
// setters invoke it synchronously, so implementations must return quickly
// and must not call back into the emitting entity.
type Notifier interface {
	// ListChanged is fired when a list-level user mutation occurred
	// (rename, sort change, item added or deleted, ...).
	ListChanged(l *List)

	// ItemChanged is fired when an item-level user mutation occurred
	// (rename, done toggle).
	ItemChanged(it *Item)

	// ListUpdated is fired after a list has been wholesale replaced by a
	// remote record. It is distinct from ListChanged so that observers can
	// refresh without re-triggering synchronization.
	ListUpdated(l *List)
}

// NopNotifier discards all notifications. Useful for entities under
// construction and in tests.
type NopNotifier struct{}

func (NopNotifier) ListChanged(*List)  {}
func (NopNotifier) ItemChanged(*Item)  {}
func (NopNotifier) ListUpdated(*List)  {}

// MultiNotifier fans a notification out to several sinks in order.
type MultiNotifier []Notifier

func (m MultiNotifier) ListChanged(l *List) {
	for _, n := range m {
		n.ListChanged(l)
	}
}

func (m MultiNotifier) ItemChanged(it *Item) {
	for _, n := range m {
		n.ItemChanged(it)
	}
}

func (m MultiNotifier) ListUpdated(l *List) {
	for _, n := range m {
		n.ListUpdated(l)
	}
}
