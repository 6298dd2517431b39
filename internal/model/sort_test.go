package model

import (
	"testing"
	"time"
)

func listWithItems(t *testing.T, names ...string) *List {
	t.Helper()
	l := NewList(nil, "test")
	for _, name := range names {
		if got := l.AddItem(NewItem(nil, name), nil); got != AddAdded {
			t.Fatalf("AddItem(%q) = %v; want AddAdded", name, got)
		}
	}
	return l
}

func itemNames(l *List) []string {
	var names []string
	for _, it := range l.Items() {
		names = append(names, it.Name())
	}
	return names
}

func assertOrder(t *testing.T, l *List, want ...string) {
	t.Helper()
	got := itemNames(l)
	if len(got) != len(want) {
		t.Fatalf("items = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v; want %v", got, want)
		}
	}
}

func TestSortAlphabeticalIsNumericAware(t *testing.T) {
	l := listWithItems(t, "item 10", "item 2", "Item 1")
	l.SetShowActiveFirst(false)
	l.SortItems()
	assertOrder(t, l, "Item 1", "item 2", "item 10")
}

func TestSortUsageMostUsedFirst(t *testing.T) {
	l := listWithItems(t, "bread", "milk", "eggs")
	l.SetSortType(SortUsage)
	l.SetShowActiveFirst(false)
	for _, it := range l.Items() {
		switch it.Name() {
		case "milk":
			it.usage = 5
		case "eggs":
			it.usage = 2
		}
	}
	l.SortItems()
	assertOrder(t, l, "milk", "eggs", "bread")
}

func TestSortDateCreatedNewestFirst(t *testing.T) {
	l := listWithItems(t, "old", "new")
	l.SetSortType(SortDateCreated)
	l.SetShowActiveFirst(false)
	now := time.Now()
	l.Items()[0].created = now.Add(-time.Hour)
	l.Items()[1].created = now
	l.SortItems()
	assertOrder(t, l, "new", "old")
}

func TestSortPinsActiveItemsFirst(t *testing.T) {
	l := listWithItems(t, "apples", "zucchini")
	for _, it := range l.Items() {
		if it.Name() == "apples" {
			it.done = true
		}
	}
	l.SortItems()
	assertOrder(t, l, "zucchini", "apples")
}

func TestSortManualKeepsOrder(t *testing.T) {
	l := listWithItems(t, "c", "a", "b")
	l.SetSortType(SortManual)
	l.SortItems()
	assertOrder(t, l, "c", "a", "b")
}
