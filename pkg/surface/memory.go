package surface

import (
	"sort"
	"strings"
	"sync"

	"propsync/pkg/models"
	"propsync/pkg/timeutil"
)

// Memory is an in-process surface backed by a map. It serves tests and
// deployments where property state does not need to survive restarts.
type Memory struct {
	mu    sync.RWMutex
	props map[string]models.Property
	snaps []models.MetricsSnapshot
}

// NewMemory returns an empty in-memory surface.
func NewMemory() *Memory {
	return &Memory{props: make(map[string]models.Property)}
}

func (m *Memory) SetProperty(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[name] = models.Property{Name: name, Value: value, UpdatedTS: timeutil.Now().UnixNano()}
	return nil
}

func (m *Memory) GetProperty(name string) (models.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.props[name]
	if !ok {
		return models.Property{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ApplyBatch(updates []Update) error {
	now := timeutil.Now().UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		m.props[u.Name] = models.Property{Name: u.Name, Value: u.Value, UpdatedTS: now}
	}
	return nil
}

func (m *Memory) ListProperties(prefix string, limit int) ([]models.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Property, 0, len(m.props))
	for _, p := range m.props {
		if prefix != "" && !strings.HasPrefix(p.Name, prefix) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveSnapshot(snap models.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *Memory) ListSnapshots(limit int) ([]models.MetricsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.MetricsSnapshot(nil), m.snaps...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// PruneSnapshots keeps the newest `keep` snapshots per scope, like the
// pebble surface does.
func (m *Memory) PruneSnapshots(keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keep < 0 || len(m.snaps) <= keep {
		return 0, nil
	}
	perScope := make(map[string]int)
	kept := make([]models.MetricsSnapshot, 0, len(m.snaps))
	removed := 0
	// snapshots append in save order, so walk from the newest backwards
	for i := len(m.snaps) - 1; i >= 0; i-- {
		s := m.snaps[i]
		if perScope[s.Scope] >= keep {
			removed++
			continue
		}
		perScope[s.Scope]++
		kept = append(kept, s)
	}
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	m.snaps = kept
	return removed, nil
}
