package surface

import (
	"errors"

	"propsync/pkg/models"
)

// ErrNotFound is returned when a property does not exist on a surface.
var ErrNotFound = errors.New("property not found")

// Update is a single name/value pair headed for a surface.
type Update struct {
	Name  string
	Value string
}

// Surface is the write target for property updates. Implementations must be
// safe for concurrent use.
type Surface interface {
	SetProperty(name, value string) error
}

// Reader is implemented by surfaces that can serve value queries.
type Reader interface {
	GetProperty(name string) (models.Property, error)
}

// Batcher is implemented by surfaces that can apply a drained batch
// atomically. Coordinators use it when present and fall back to per-update
// SetProperty calls otherwise.
type Batcher interface {
	ApplyBatch(updates []Update) error
}

// Lister is implemented by surfaces that can enumerate stored properties.
type Lister interface {
	ListProperties(prefix string, limit int) ([]models.Property, error)
}

// Snapshotter is implemented by surfaces that can persist coordinator
// metrics snapshots for the janitor. PruneSnapshots keeps the newest
// `keep` snapshots of each scope.
type Snapshotter interface {
	SaveSnapshot(snap models.MetricsSnapshot) error
	ListSnapshots(limit int) ([]models.MetricsSnapshot, error)
	PruneSnapshots(keep int) (int, error)
}

// IsNotFound reports whether err indicates a missing property.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
