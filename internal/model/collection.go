package model

import "time"

// Collection holds all lists known to this client. It performs no locking
// of its own: the sync engine is the single owner and serializes access.
type Collection struct {
	lists    []*List
	notifier Notifier

	// oldestCreated approximates the first app start, derived from the
	// oldest non-shared list.
	oldestCreated time.Time
}

// NewCollection creates an empty collection whose lists report changes to
// the given sink.
func NewCollection(notifier Notifier) *Collection {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Collection{notifier: notifier, oldestCreated: time.Now()}
}

// Lists returns the lists in order. The returned slice is shared; callers
// must not mutate it.
func (c *Collection) Lists() []*List { return c.lists }

// Len returns the number of lists.
func (c *Collection) Len() int { return len(c.lists) }

// Find returns the list with the given id, or nil.
func (c *Collection) Find(id string) *List {
	for _, l := range c.lists {
		if l.id == id {
			return l
		}
	}
	return nil
}

// Add appends a list to the collection.
func (c *Collection) Add(l *List) {
	c.lists = append(c.lists, l)
}

// Remove deletes the list with the given id and reports whether it was
// present.
func (c *Collection) Remove(id string) bool {
	for i, l := range c.lists {
		if l.id == id {
			c.lists = append(c.lists[:i], c.lists[i+1:]...)
			return true
		}
	}
	return false
}

// SetFromRecords replaces the whole collection with materialized records,
// e.g. after loading from the local store.
func (c *Collection) SetFromRecords(recs []*ListRecord) {
	c.lists = c.lists[:0]
	for _, rec := range recs {
		l := ListFromRecord(c.notifier, rec)
		if l.shared == nil && l.created.Before(c.oldestCreated) {
			c.oldestCreated = l.created
		}
		c.lists = append(c.lists, l)
	}
}

// AddOrUpdate merges a single record: an existing list with the same id is
// replaced in place, otherwise the record is materialized and appended.
func (c *Collection) AddOrUpdate(rec *ListRecord) *List {
	if existing := c.Find(rec.ID); existing != nil {
		existing.ApplyRemote(rec)
		return existing
	}
	l := ListFromRecord(c.notifier, rec)
	c.lists = append(c.lists, l)
	return l
}

// ToRecords serializes every list into its wire shape.
func (c *Collection) ToRecords() []*ListRecord {
	recs := make([]*ListRecord, 0, len(c.lists))
	for _, l := range c.lists {
		recs = append(recs, l.ToRecord())
	}
	return recs
}

// OldestCreated returns the creation time of the oldest non-shared list.
func (c *Collection) OldestCreated() time.Time { return c.oldestCreated }

// DefaultRecords returns the seed lists shown on a fresh install.
func DefaultRecords() []*ListRecord {
	groceries := NewList(NopNotifier{}, "Groceries")
	groceries.sortType = SortUsage
	for _, name := range []string{"milk", "butter", "bread"} {
		groceries.AddItem(NewItem(NopNotifier{}, name), nil)
	}

	todos := NewList(NopNotifier{}, "ToDo's")
	todos.color = "bold-green"
	general := NewGroup("general")
	todos.AddGroup(general)
	todos.AddItem(NewItem(NopNotifier{}, "explore the app"), general)
	todos.AddItem(NewItem(NopNotifier{}, "create a list"), general)

	recs := []*ListRecord{groceries.ToRecord(), todos.ToRecord()}
	for _, rec := range recs {
		rec.HasUserChanges = false
	}
	return recs
}
