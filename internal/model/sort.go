package model

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// nameCollator compares item names locale-aware and numeric-aware, so
// "item 2" sorts before "item 10" and case differences are ignored.
var nameCollator = collate.New(language.Und, collate.Loose, collate.Numeric)

// compareFunc orders two items; negative means left sorts first.
type compareFunc func(left, right *Item) int

// comparerFor returns the comparer for a sort type, or nil for manual
// ordering.
func comparerFor(t SortType) compareFunc {
	switch t {
	case SortAlphabetical:
		return func(a, b *Item) int {
			return nameCollator.CompareString(a.name, b.name)
		}
	case SortUsage:
		return func(a, b *Item) int {
			if a.usage != b.usage {
				// most used first
				return b.usage - a.usage
			}
			return nameCollator.CompareString(a.name, b.name)
		}
	case SortDateCreated:
		return func(a, b *Item) int {
			// newest first
			switch {
			case a.created.After(b.created):
				return -1
			case b.created.After(a.created):
				return 1
			default:
				return 0
			}
		}
	default:
		return nil
	}
}

// SortItems orders the items of every group according to the list's sort
// type, optionally pinning active items before done ones. Manual sort
// leaves the user-defined order untouched.
func (l *List) SortItems() {
	cmp := comparerFor(l.sortType)
	if cmp == nil {
		return
	}

	for _, g := range l.groups {
		items := g.items
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i], items[j]
			if l.showActiveFirst && a.done != b.done {
				return !a.done
			}
			return cmp(a, b) < 0
		})
	}
}
