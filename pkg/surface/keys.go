package surface

import "fmt"

const (
	// notation dictionary for key formats:
	// p    = property
	// snap = metrics snapshot
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment (e.g. <name>, <scope>)

	propKeyFmt = "p:%s"          // p:<name>
	snapKeyFmt = "snap:%s:%020d" // snap:<scope>:<ts> (zero padded for lexicographic ordering)

	propPrefix = "p:"
	snapPrefix = "snap:"

	// padding width (fixed for lexicographic ordering)
	tsPadWidth = 20
)

func propKey(name string) []byte {
	return []byte(fmt.Sprintf(propKeyFmt, name))
}

func snapKey(scope string, ts int64) []byte {
	return []byte(fmt.Sprintf(snapKeyFmt, scope, ts))
}
