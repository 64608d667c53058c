// Package outline turns a document's flat table of contents into a section
// tree and derives the ordered, page-ranged leaf sections that drive chunking.
package outline

import "errors"

// ErrNoOutline indicates a document without a usable table of contents.
// Ingestion cannot proceed without one.
var ErrNoOutline = errors.New("document has no outline")

// Entry is one raw outline row as reported by a parser.
type Entry struct {
	Level int    // Nesting depth, 1 = top level
	Title string // Section heading
	Page  int    // First page of the section, 1-based
}

// Node is a section in the reconstructed outline tree.
type Node struct {
	Title    string
	Page     int
	Path     []string // Ancestor titles, root first; own title excluded
	Children []*Node
}

// Leaf is a childless section with its resolved page range. EndPage is
// exclusive; consecutive leaves tile the document with no gaps.
type Leaf struct {
	Title     string
	Path      []string
	StartPage int
	EndPage   int
}

// Build nests entries into a forest by level. An entry attaches to the most
// recently opened entry with a shallower level, so skipped levels degrade
// gracefully instead of failing. Returns ErrNoOutline on empty input.
func Build(entries []Entry) ([]*Node, error) {
	if len(entries) == 0 {
		return nil, ErrNoOutline
	}

	type frame struct {
		level int
		node  *Node
	}

	var forest []*Node
	var stack []frame
	for _, e := range entries {
		n := &Node{Title: e.Title, Page: e.Page}
		for len(stack) > 0 && stack[len(stack)-1].level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			forest = append(forest, n)
		} else {
			parent := stack[len(stack)-1].node
			n.Path = append(append([]string(nil), parent.Path...), parent.Title)
			parent.Children = append(parent.Children, n)
		}
		stack = append(stack, frame{level: e.Level, node: n})
	}
	return forest, nil
}

// Leaves flattens the forest to childless nodes in pre-order and assigns each
// its page range: a leaf ends where the next one starts, and the last leaf
// runs through the final page (EndPage == totalPages+1).
func Leaves(forest []*Node, totalPages int) []Leaf {
	var leaves []Leaf
	var walk func(n *Node)
	walk = func(n *Node) {
		if len(n.Children) == 0 {
			leaves = append(leaves, Leaf{Title: n.Title, Path: n.Path, StartPage: n.Page})
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range forest {
		walk(n)
	}
	for i := range leaves {
		if i+1 < len(leaves) {
			leaves[i].EndPage = leaves[i+1].StartPage
		} else {
			leaves[i].EndPage = totalPages + 1
		}
	}
	return leaves
}
