package outline

import (
	"errors"
	"testing"
)

func TestBuildEmpty(t *testing.T) {
	_, err := Build(nil)
	if !errors.Is(err, ErrNoOutline) {
		t.Fatalf("Build(nil) error = %v, want ErrNoOutline", err)
	}
}

func TestBuildNesting(t *testing.T) {
	entries := []Entry{
		{Level: 1, Title: "Part I", Page: 1},
		{Level: 2, Title: "Chapter 1", Page: 2},
		{Level: 3, Title: "Section 1.1", Page: 2},
		{Level: 2, Title: "Chapter 2", Page: 6},
		{Level: 1, Title: "Part II", Page: 9},
	}
	forest, err := Build(entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(forest) != 2 {
		t.Fatalf("got %d roots, want 2", len(forest))
	}
	part1 := forest[0]
	if len(part1.Children) != 2 {
		t.Fatalf("Part I has %d children, want 2", len(part1.Children))
	}
	ch1 := part1.Children[0]
	if len(ch1.Children) != 1 {
		t.Fatalf("Chapter 1 has %d children, want 1", len(ch1.Children))
	}
	sec := ch1.Children[0]
	wantPath := []string{"Part I", "Chapter 1"}
	if len(sec.Path) != len(wantPath) {
		t.Fatalf("Section 1.1 path = %v, want %v", sec.Path, wantPath)
	}
	for i := range wantPath {
		if sec.Path[i] != wantPath[i] {
			t.Errorf("path[%d] = %q, want %q", i, sec.Path[i], wantPath[i])
		}
	}
	if len(forest[1].Path) != 0 {
		t.Errorf("root path = %v, want empty", forest[1].Path)
	}
}

func TestBuildLevelJump(t *testing.T) {
	// A jump from level 1 straight to level 3 still nests under the
	// nearest open shallower entry.
	entries := []Entry{
		{Level: 1, Title: "Top", Page: 1},
		{Level: 3, Title: "Deep", Page: 2},
	}
	forest, err := Build(entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(forest) != 1 || len(forest[0].Children) != 1 {
		t.Fatalf("unexpected shape: roots=%d", len(forest))
	}
	deep := forest[0].Children[0]
	if deep.Title != "Deep" || len(deep.Path) != 1 || deep.Path[0] != "Top" {
		t.Errorf("Deep path = %v, want [Top]", deep.Path)
	}
}

func TestLeavesRanges(t *testing.T) {
	entries := []Entry{
		{Level: 1, Title: "A", Page: 1},
		{Level: 2, Title: "A.1", Page: 2},
		{Level: 1, Title: "B", Page: 5},
	}
	forest, err := Build(entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	leaves := Leaves(forest, 8)
	if len(leaves) != 2 {
		t.Fatalf("got %d leaves, want 2 (A is not a leaf)", len(leaves))
	}
	want := []Leaf{
		{Title: "A.1", StartPage: 2, EndPage: 5},
		{Title: "B", StartPage: 5, EndPage: 9},
	}
	for i, w := range want {
		got := leaves[i]
		if got.Title != w.Title || got.StartPage != w.StartPage || got.EndPage != w.EndPage {
			t.Errorf("leaf[%d] = {%s %d %d}, want {%s %d %d}",
				i, got.Title, got.StartPage, got.EndPage, w.Title, w.StartPage, w.EndPage)
		}
	}
}

func TestLeavesPartition(t *testing.T) {
	entries := []Entry{
		{Level: 1, Title: "Intro", Page: 1},
		{Level: 1, Title: "Middle", Page: 4},
		{Level: 2, Title: "Detail", Page: 4},
		{Level: 2, Title: "More", Page: 7},
		{Level: 1, Title: "End", Page: 11},
	}
	const totalPages = 14
	forest, err := Build(entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	leaves := Leaves(forest, totalPages)
	if len(leaves) == 0 {
		t.Fatal("no leaves")
	}
	for i := 0; i < len(leaves)-1; i++ {
		if leaves[i].EndPage != leaves[i+1].StartPage {
			t.Errorf("gap or overlap between leaf %d and %d: end=%d next start=%d",
				i, i+1, leaves[i].EndPage, leaves[i+1].StartPage)
		}
	}
	last := leaves[len(leaves)-1]
	if last.EndPage != totalPages+1 {
		t.Errorf("last leaf EndPage = %d, want %d", last.EndPage, totalPages+1)
	}
	for _, l := range leaves {
		if l.StartPage >= l.EndPage {
			t.Errorf("leaf %q has empty range [%d,%d)", l.Title, l.StartPage, l.EndPage)
		}
	}
}
