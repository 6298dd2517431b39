package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileExtension is the suffix of a list's remote file name.
const FileExtension = ".list"

// DefaultGroupID is the fixed id of the always-present group that holds
// ungrouped items. It is shared by every client so that serialized lists
// stay interoperable across devices.
const DefaultGroupID = "a77e08c6-f350-42e1-96cd-aa922688ac92"

// defaultGroupName is the display label of the default group.
const defaultGroupName = "#"

// SortType selects how list items are ordered for display.
type SortType int

const (
	SortAlphabetical SortType = iota
	SortUsage
	SortDateCreated
	SortManual
)

// AddOutcome reports what AddItem did with the candidate item.
type AddOutcome int

const (
	// AddIgnored means an active item with the same name already exists.
	AddIgnored AddOutcome = iota
	// AddAdded means the item was appended to the target group.
	AddAdded
	// AddActivated means a done item with the same name was re-activated
	// instead of inserting a duplicate.
	AddActivated
	// AddInvalid means the item name was empty after trimming.
	AddInvalid
)

// ShareInfo points a list at its public share location. Presence means the
// list participates in the unauthenticated shared sync channel.
type ShareInfo struct {
	URL      string `json:"url"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// List is a named collection of groups of items. Mutating setters stamp
// the modification time, set the user-change flag and emit ListChanged;
// a list under construction suppresses that until it is fully built.
type List struct {
	id              string
	name            string
	sortType        SortType
	showActiveFirst bool
	color           string
	shared          *ShareInfo
	groups          []*Group // groups[0] is the default group
	hasUserChanges  bool
	created         time.Time
	modified        time.Time

	notifier Notifier
	tracked  bool
}

// NewList creates an empty list with a fresh id, the default group and
// change tracking enabled.
func NewList(notifier Notifier, name string) *List {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	now := time.Now()
	return &List{
		id:              uuid.NewString(),
		name:            name,
		sortType:        SortAlphabetical,
		showActiveFirst: true,
		groups:          []*Group{{id: DefaultGroupID, name: defaultGroupName}},
		created:         now,
		modified:        now,
		notifier:        notifier,
		tracked:         true,
	}
}

func (l *List) ID() string            { return l.id }
func (l *List) Name() string          { return l.name }
func (l *List) SortType() SortType    { return l.sortType }
func (l *List) ShowActiveFirst() bool { return l.showActiveFirst }
func (l *List) Color() string         { return l.color }
func (l *List) Created() time.Time    { return l.created }
func (l *List) Modified() time.Time   { return l.modified }

// Shared returns the share pointer, or nil for a private list.
func (l *List) Shared() *ShareInfo { return l.shared }

// SetShared attaches or (with nil) removes the share pointer. Sharing
// state is not part of user-change tracking; it is adjusted by the sync
// engine as well as by the user.
func (l *List) SetShared(s *ShareInfo) { l.shared = s }

// HasUserChanges reports whether the list carries local changes that have
// not been uploaded yet.
func (l *List) HasUserChanges() bool { return l.hasUserChanges }

// SetHasUserChanges overrides the dirty flag. The sync engine clears it
// after a successful upload.
func (l *List) SetHasUserChanges(v bool) { l.hasUserChanges = v }

// FileName is the name of the list's remote file.
func (l *List) FileName() string { return l.id + FileExtension }

func (l *List) SetName(name string) {
	l.name = name
	l.touch()
}

func (l *List) SetSortType(t SortType) {
	l.sortType = t
	l.touch()
}

func (l *List) SetShowActiveFirst(v bool) {
	l.showActiveFirst = v
	l.touch()
}

func (l *List) SetColor(color string) {
	l.color = color
	l.touch()
}

// DefaultGroup returns the always-present group for ungrouped items.
func (l *List) DefaultGroup() *Group { return l.groups[0] }

// Groups returns the groups in order, default group first. The returned
// slice is shared; callers must not mutate it.
func (l *List) Groups() []*Group { return l.groups }

// AddGroup appends a named section and records the change.
func (l *List) AddGroup(g *Group) {
	l.groups = append(l.groups, g)
	l.touch()
}

// Items returns all items of all groups, flattened in group order.
func (l *List) Items() []*Item {
	var items []*Item
	for _, g := range l.groups {
		items = append(items, g.items...)
	}
	return items
}

// GroupOf returns the group containing the item, or nil.
func (l *List) GroupOf(it *Item) *Group {
	for _, g := range l.groups {
		for _, other := range g.items {
			if other.id == it.id {
				return g
			}
		}
	}
	return nil
}

// Count returns the number of active (not done) items.
func (l *List) Count() int {
	n := 0
	for _, it := range l.Items() {
		if !it.done {
			n++
		}
	}
	return n
}

// EffectiveModified returns the latest modification time of the list and
// all of its items. Item mutations do not bump the list's own timestamp,
// so conflict resolution must always go through this accessor.
func (l *List) EffectiveModified() time.Time {
	latest := l.modified
	for _, it := range l.Items() {
		if it.modified.After(latest) {
			latest = it.modified
		}
	}
	return latest
}

// AddItem places the item into the target group (default group when nil).
// The name is trimmed; an empty result is rejected. A case-insensitive
// name match against the group decides the outcome: a done match is
// re-activated, an active match makes the call a no-op. Only a real
// insert stamps the list and emits ListChanged.
func (l *List) AddItem(it *Item, group *Group) AddOutcome {
	it.list = l
	it.name = strings.TrimSpace(it.name)
	if it.name == "" {
		return AddInvalid
	}

	if group == nil {
		group = l.DefaultGroup()
	}

	for _, existing := range group.items {
		if strings.EqualFold(existing.name, it.name) {
			if existing.done {
				existing.SetDone(false)
				return AddActivated
			}
			return AddIgnored
		}
	}

	group.items = append(group.items, it)
	l.touch()
	return AddAdded
}

// DeleteItem removes the item from whichever group contains it. No-op if
// the item is not on this list.
func (l *List) DeleteItem(it *Item) {
	for _, g := range l.groups {
		for i, other := range g.items {
			if other.id == it.id {
				g.items = append(g.items[:i], g.items[i+1:]...)
				l.touch()
				return
			}
		}
	}
}

// ApplyRemote replaces the list's groups, items and metadata with the
// remote record in one atomic step. Change tracking stays suspended for
// the whole replacement so that a pulled update is never mistaken for a
// local edit; afterwards the dirty flag is cleared, the modification time
// is taken from the record (not the clock) and a single ListUpdated is
// emitted.
func (l *List) ApplyRemote(rec *ListRecord) {
	l.tracked = false
	defer func() { l.tracked = true }()

	l.name = rec.Name
	l.showActiveFirst = rec.ShowActiveItemsFirst
	l.sortType = rec.SortType
	l.color = rec.Color
	l.shared = rec.Shared
	l.groups = groupsFromRecord(l, rec)
	l.hasUserChanges = false
	l.modified = rec.Modified

	l.notifier.ListUpdated(l)
}

// touch stamps the modification time, sets the dirty flag and emits
// ListChanged. No-op while change tracking is suspended.
func (l *List) touch() {
	if !l.tracked {
		return
	}
	l.modified = time.Now()
	l.hasUserChanges = true
	l.notifier.ListChanged(l)
}
