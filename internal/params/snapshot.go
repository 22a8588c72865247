package params

import "sort"

// Snapshot is the full canonical state of one paramset: one typed value
// per hierarchical path. Mutation funnels through the synchronizer so
// the diff against the last-applied state stays race free.
type Snapshot map[string]Value

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Snapshot) Bool(path string) bool {
	return s[path].Bool
}

func (s Snapshot) Int(path string) int {
	return s[path].Int
}

func (s Snapshot) Float(path string) float64 {
	return s[path].Float
}

func (s Snapshot) Str(path string) string {
	return s[path].Str
}

// Paths returns the snapshot's keys in stable order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Diff returns the paths whose values in next differ from s, restricted
// to paths next actually carries.
func (s Snapshot) Diff(next Snapshot) []string {
	var changed []string
	for _, path := range next.Paths() {
		if prev, ok := s[path]; !ok || !prev.Equal(next[path]) {
			changed = append(changed, path)
		}
	}
	return changed
}

// State is the lifecycle of one paramset.
type State int

const (
	Uninitialized State = iota
	Refreshing
	Synchronized
	Committing
	Errored
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Refreshing:
		return "refreshing"
	case Synchronized:
		return "synchronized"
	case Committing:
		return "committing"
	case Errored:
		return "error"
	}
	return "unknown"
}
