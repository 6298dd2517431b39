package model

import (
	"time"

	"github.com/google/uuid"
)

// usageCooldown is the minimum time an item must have stayed done before
// re-activating it counts as a new usage.
const usageCooldown = 24 * time.Hour

// Item is a single entry on a list. All mutable state is modified through
// setters that stamp the modification time, flag the owning list as changed
// and notify the injected sink. An item under construction (or being
// rebuilt from a remote record) bypasses that tracking until it is sealed.
type Item struct {
	id       string
	name     string
	done     bool
	usage    int
	created  time.Time
	modified time.Time

	// list is a back-reference to the owner, not ownership.
	list     *List
	notifier Notifier
	tracked  bool
}

// NewItem creates a new item with a fresh id and enabled change tracking.
// The list back-reference is set when the item is added to a list.
func NewItem(notifier Notifier, name string) *Item {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	now := time.Now()
	return &Item{
		id:       uuid.NewString(),
		name:     name,
		created:  now,
		modified: now,
		notifier: notifier,
		tracked:  true,
	}
}

func (it *Item) ID() string          { return it.id }
func (it *Item) Name() string        { return it.name }
func (it *Item) Done() bool          { return it.done }
func (it *Item) Usage() int          { return it.usage }
func (it *Item) Created() time.Time  { return it.created }
func (it *Item) Modified() time.Time { return it.modified }

// List returns the owning list, or nil for a detached item.
func (it *Item) List() *List { return it.list }

// SetName renames the item and records the change.
func (it *Item) SetName(name string) {
	it.name = name
	it.touch()
}

// SetDone toggles the done state. Re-activating an item that stayed done
// for at least a day counts as a usage, approximating how often the entry
// is re-added over time.
func (it *Item) SetDone(done bool) {
	if it.tracked && it.done && !done && time.Since(it.modified) >= usageCooldown {
		it.usage++
	}
	it.done = done
	it.touch()
}

// touch stamps the modification time, marks the owning list as carrying
// user changes and emits ItemChanged. No-op while tracking is suspended or
// the item is detached.
func (it *Item) touch() {
	if !it.tracked || it.list == nil {
		return
	}
	it.modified = time.Now()
	it.list.hasUserChanges = true
	it.notifier.ItemChanged(it)
}

// itemFromRecord rebuilds an item from its wire record with tracking
// enabled only after all fields are in place.
func itemFromRecord(notifier Notifier, rec ItemRecord) *Item {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Item{
		id:       rec.ID,
		name:     rec.Name,
		done:     rec.Done,
		usage:    rec.Usage,
		created:  rec.Created,
		modified: rec.Modified,
		notifier: notifier,
		tracked:  true,
	}
}

// Group is an ordered, named section of a list. The first group of every
// list is the default group holding ungrouped items; it cannot be removed.
// Item membership is manipulated through the owning list.
type Group struct {
	id    string
	name  string
	items []*Item
}

// NewGroup creates a named group with a fresh id.
func NewGroup(name string) *Group {
	return &Group{id: uuid.NewString(), name: name}
}

func (g *Group) ID() string   { return g.id }
func (g *Group) Name() string { return g.name }

// Items returns the group's items in order. The returned slice is shared;
// callers must not mutate it.
func (g *Group) Items() []*Item { return g.items }
