package coordinator

import "strings"

// CriticalFunc decides whether a property name must bypass batching. It must
// be a pure function of the name.
type CriticalFunc func(name string) bool

// NewCriticalSet builds a CriticalFunc from exact names and name prefixes.
// Properties already written once per frame by their own driver gain nothing
// from a second coalescing layer; routing them through the queue would only
// add a frame of latency.
func NewCriticalSet(names, prefixes []string) CriticalFunc {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	pfx := append([]string(nil), prefixes...)
	return func(name string) bool {
		if _, ok := set[name]; ok {
			return true
		}
		for _, p := range pfx {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}
