package model

import "time"

// ItemRecord is the wire representation of an item inside a list file.
// Items of the default group carry no group id.
type ItemRecord struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	GroupID  string    `json:"groupId,omitempty"`
	Done     bool      `json:"done"`
	Usage    int       `json:"usage"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// GroupRecord is the wire representation of a named group. The default
// group is never serialized; its membership is inferred from items without
// a group id.
type GroupRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListRecord is the full serialization of a list. It is the interop
// contract between devices: one remote file (`{id}.list`) holds exactly
// one of these, with all groups flattened into a single item array.
type ListRecord struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Items                []ItemRecord  `json:"items"`
	Groups               []GroupRecord `json:"groups"`
	SortType             SortType      `json:"sortType"`
	ShowActiveItemsFirst bool          `json:"showActiveItemsFirst"`
	Color                string        `json:"color,omitempty"`
	Shared               *ShareInfo    `json:"shared,omitempty"`
	HasUserChanges       bool          `json:"hasUserChanges"`
	Created              time.Time     `json:"created"`
	Modified             time.Time     `json:"modified"`
}

// EffectiveModified returns the latest modification time of the record and
// all of its items, the counterpart of List.EffectiveModified for not yet
// materialized remote data.
func (r *ListRecord) EffectiveModified() time.Time {
	latest := r.Modified
	for _, it := range r.Items {
		if it.Modified.After(latest) {
			latest = it.Modified
		}
	}
	return latest
}

// ToRecord serializes the list into its wire shape.
func (l *List) ToRecord() *ListRecord {
	rec := &ListRecord{
		ID:                   l.id,
		Name:                 l.name,
		Items:                []ItemRecord{},
		Groups:               []GroupRecord{},
		SortType:             l.sortType,
		ShowActiveItemsFirst: l.showActiveFirst,
		Color:                l.color,
		Shared:               l.shared,
		HasUserChanges:       l.hasUserChanges,
		Created:              l.created,
		Modified:             l.modified,
	}

	for _, g := range l.groups {
		isDefault := g.id == DefaultGroupID
		if !isDefault {
			rec.Groups = append(rec.Groups, GroupRecord{ID: g.id, Name: g.name})
		}
		for _, it := range g.items {
			ir := ItemRecord{
				ID:       it.id,
				Name:     it.name,
				Done:     it.done,
				Usage:    it.usage,
				Created:  it.created,
				Modified: it.modified,
			}
			if !isDefault {
				ir.GroupID = g.id
			}
			rec.Items = append(rec.Items, ir)
		}
	}

	return rec
}

// ListFromRecord materializes a list from its wire shape with change
// tracking enabled only after all fields are in place.
func ListFromRecord(notifier Notifier, rec *ListRecord) *List {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	l := &List{
		id:              rec.ID,
		name:            rec.Name,
		sortType:        rec.SortType,
		showActiveFirst: rec.ShowActiveItemsFirst,
		color:           rec.Color,
		shared:          rec.Shared,
		hasUserChanges:  rec.HasUserChanges,
		created:         rec.Created,
		modified:        rec.Modified,
		notifier:        notifier,
	}
	l.groups = groupsFromRecord(l, rec)
	l.tracked = true
	return l
}

// groupsFromRecord rebuilds the group structure from the flattened item
// array: items without a group id belong to the default group.
func groupsFromRecord(l *List, rec *ListRecord) []*Group {
	def := &Group{id: DefaultGroupID, name: defaultGroupName}
	groups := []*Group{def}

	for _, ir := range rec.Items {
		if ir.GroupID == "" {
			it := itemFromRecord(l.notifier, ir)
			it.list = l
			def.items = append(def.items, it)
		}
	}

	for _, gr := range rec.Groups {
		g := &Group{id: gr.ID, name: gr.Name}
		for _, ir := range rec.Items {
			if ir.GroupID == gr.ID {
				it := itemFromRecord(l.notifier, ir)
				it.list = l
				g.items = append(g.items, it)
			}
		}
		groups = append(groups, g)
	}

	return groups
}
