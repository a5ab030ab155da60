package taxonomy

import (
	"sort"
)

// DefaultFloor is the probability given to a leaf no raw label matched.
const DefaultFloor = 0.01

// Mapper projects raw category preference tables onto canonical leaves.
type Mapper struct {
	leaves []string
	groups map[string][]string
	names  []string
	Floor  float64
}

// NewMapper prepares a mapper over t's leaves and top-level groups.
func NewMapper(t *Taxonomy) *Mapper {
	m := &Mapper{leaves: t.LeafKeys(), groups: t.Groups(), Floor: DefaultFloor}
	for name := range m.groups {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)
	return m
}

// Leaves returns the canonical leaf keys every mapped table covers.
func (m *Mapper) Leaves() []string { return append([]string(nil), m.leaves...) }

// Map re-keys raw onto canonical leaves. A label whose best top-level match
// outscores its best leaf match spreads its mass evenly over that group's
// leaves; otherwise the best leaf takes all of it. Leaves left without mass
// get Floor, then the table is renormalised to sum to 1.
func (m *Mapper) Map(raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m.leaves))
	for _, leaf := range m.leaves {
		out[leaf] = 0
	}

	labels := make([]string, 0, len(raw))
	for l := range raw {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, label := range labels {
		p := raw[label]
		if p <= 0 {
			continue
		}
		leaf, leafOK := ExtractOne(label, m.leaves)
		group, groupOK := ExtractOne(label, m.names)
		switch {
		case groupOK && (!leafOK || group.Score > leaf.Score):
			members := m.groups[group.Choice]
			for _, k := range members {
				out[k] += p / float64(len(members))
			}
		case leafOK:
			out[leaf.Choice] += p
		}
	}

	total := 0.0
	for k, p := range out {
		if p == 0 {
			out[k] = m.Floor
		}
		total += out[k]
	}
	for k := range out {
		out[k] /= total
	}
	return out
}

// MapSegments applies Map to every segment's table.
func (m *Mapper) MapSegments(perSegment map[int]map[string]float64) map[int]map[string]float64 {
	out := make(map[int]map[string]float64, len(perSegment))
	for id, raw := range perSegment {
		out[id] = m.Map(raw)
	}
	return out
}
