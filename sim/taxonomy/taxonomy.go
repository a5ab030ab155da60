// Package taxonomy holds the canonical product category tree, the fuzzy
// scorer used to match noisy labels against it, and the Mapper that projects
// raw preference tables onto canonical leaves.
package taxonomy

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// PathSep separates levels in a category path.
const PathSep = " > "

// RootParent marks a top-level node in the taxonomy table.
const RootParent = "-"

// Node is one category in the tree.
type Node struct {
	ID       string
	ParentID string
	Level    int
	Name     string
	Path     string
}

// Key is the canonical lowercase name agents and products use.
func (n *Node) Key() string { return LeafKey(n.Path) }

// LeafKey returns the lowercased last segment of a path.
func LeafKey(path string) string {
	parts := strings.Split(path, PathSep)
	return strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
}

// Taxonomy is an immutable category tree plus the raw-label mapping table.
type Taxonomy struct {
	nodes    map[string]*Node
	children map[string][]string
	roots    []string
	labels   map[string]string
	labelSet []string
}

// New validates nodes and builds the tree. labels maps raw source labels to
// node ids and may be nil.
func New(nodes []Node, labels map[string]string) (*Taxonomy, error) {
	t := &Taxonomy{
		nodes:    make(map[string]*Node, len(nodes)),
		children: make(map[string][]string),
		labels:   make(map[string]string, len(labels)),
	}
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("taxonomy row %d has empty id", i+1)
		}
		if _, dup := t.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate taxonomy id %q", n.ID)
		}
		if n.Path == "" {
			n.Path = n.Name
		}
		t.nodes[n.ID] = &n
	}
	for _, n := range t.nodes {
		if n.ParentID == "" || n.ParentID == RootParent {
			t.roots = append(t.roots, n.ID)
			continue
		}
		if _, ok := t.nodes[n.ParentID]; !ok {
			return nil, fmt.Errorf("taxonomy node %q has unknown parent %q", n.ID, n.ParentID)
		}
		t.children[n.ParentID] = append(t.children[n.ParentID], n.ID)
	}
	sort.Strings(t.roots)
	for _, ids := range t.children {
		sort.Strings(ids)
	}
	for raw, id := range labels {
		if _, ok := t.nodes[id]; !ok {
			return nil, fmt.Errorf("label %q maps to unknown id %q", raw, id)
		}
		t.labels[raw] = id
		t.labelSet = append(t.labelSet, raw)
	}
	sort.Strings(t.labelSet)
	return t, nil
}

// FromPaths builds a taxonomy from full category paths such as
// "Food & Beverages > Fresh Food > Dairy & Eggs". Intermediate nodes are
// created as needed.
func FromPaths(paths []string) (*Taxonomy, error) {
	var nodes []Node
	ids := make(map[string]string)
	for _, p := range paths {
		parts := strings.Split(p, PathSep)
		parent := RootParent
		for depth := range parts {
			prefix := strings.Join(parts[:depth+1], PathSep)
			id, ok := ids[prefix]
			if !ok {
				id = strconv.Itoa(len(ids) + 1)
				ids[prefix] = id
				nodes = append(nodes, Node{
					ID:       id,
					ParentID: parent,
					Level:    depth + 1,
					Name:     strings.TrimSpace(parts[depth]),
					Path:     prefix,
				})
			}
			parent = id
		}
	}
	return New(nodes, nil)
}

// Load reads the taxonomy table (cat_id, parent_id, level, cat_name, path)
// and, when mappingPath is non-empty, the raw label mapping table
// (source_table, raw_category_label, cat_id).
func Load(taxonomyPath, mappingPath string) (*Taxonomy, error) {
	rows, err := readTable(taxonomyPath, "cat_id", "parent_id", "level", "cat_name", "path")
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(rows))
	for i, r := range rows {
		level, err := strconv.Atoi(r["level"])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: level %q: %w", taxonomyPath, i+1, r["level"], err)
		}
		nodes = append(nodes, Node{
			ID:       r["cat_id"],
			ParentID: r["parent_id"],
			Level:    level,
			Name:     r["cat_name"],
			Path:     r["path"],
		})
	}

	var labels map[string]string
	if mappingPath != "" {
		rows, err := readTable(mappingPath, "raw_category_label", "cat_id")
		if err != nil {
			return nil, err
		}
		labels = make(map[string]string, len(rows))
		for _, r := range rows {
			labels[r["raw_category_label"]] = r["cat_id"]
		}
	}
	return New(nodes, labels)
}

func readTable(path string, required ...string) ([]map[string]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening taxonomy table: %w", err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}
	var out []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		row := make(map[string]string, len(required))
		for _, col := range required {
			row[col] = strings.TrimSpace(rec[index[col]])
		}
		out = append(out, row)
	}
}

// Node returns the node with the given id.
func (t *Taxonomy) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Leaves returns every node without children, ordered by path.
func (t *Taxonomy) Leaves() []*Node {
	var out []*Node
	for id, n := range t.nodes {
		if len(t.children[id]) == 0 {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// LeafKeys returns the distinct canonical leaf keys, sorted.
func (t *Taxonomy) LeafKeys() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range t.Leaves() {
		k := n.Key()
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Groups maps each lowercase top-level name to the leaf keys beneath it.
func (t *Taxonomy) Groups() map[string][]string {
	out := make(map[string][]string, len(t.roots))
	for _, id := range t.roots {
		name := strings.ToLower(strings.TrimSpace(t.nodes[id].Name))
		seen := make(map[string]struct{})
		for _, n := range t.leavesUnder(id) {
			k := n.Key()
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out[name] = append(out[name], k)
			}
		}
		sort.Strings(out[name])
	}
	return out
}

func (t *Taxonomy) leavesUnder(id string) []*Node {
	kids := t.children[id]
	if len(kids) == 0 {
		return []*Node{t.nodes[id]}
	}
	var out []*Node
	for _, k := range kids {
		out = append(out, t.leavesUnder(k)...)
	}
	return out
}

// Resolve maps a raw source label onto a node: an exact hit in the mapping
// table first, then the best fuzzy match among the table's labels.
func (t *Taxonomy) Resolve(raw string) (*Node, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if id, ok := t.labels[raw]; ok {
		return t.nodes[id], true
	}
	m, ok := ExtractOne(raw, t.labelSet)
	if !ok || m.Score == 0 {
		return nil, false
	}
	return t.nodes[t.labels[m.Choice]], true
}
