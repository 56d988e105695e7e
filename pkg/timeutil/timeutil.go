package timeutil

import "time"

// Now returns the current time in UTC. All persisted and logged timestamps
// go through here so records compare across hosts regardless of local zone.
func Now() time.Time {
	return time.Now().UTC()
}
