package surface

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/pebble"

	"propsync/pkg/logger"
	"propsync/pkg/models"
	"propsync/pkg/timeutil"
)

// Pebble is a persistent surface backed by a pebble store. Property values
// land under the p: keyspace, janitor metric snapshots under snap:.
type Pebble struct {
	db          *pebble.DB
	path        string
	walDisabled bool
}

// PebbleOptions tunes the underlying store.
type PebbleOptions struct {
	CacheSize  int64
	DisableWAL bool
}

// OpenPebble opens or creates the pebble store at path.
func OpenPebble(path string, opts PebbleOptions) (*Pebble, error) {
	popts := &pebble.Options{
		DisableWAL: opts.DisableWAL,
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		popts.Cache = cache
		defer cache.Unref()
	}
	if opts.DisableWAL {
		// property values are reconstructible from producers
		logger.Warn("durability_disabled", "surface", "pebble", "wal", "off")
	}
	db, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Pebble{db: db, path: path, walDisabled: opts.DisableWAL}, nil
}

// Close closes the underlying store.
func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	return nil
}

// Ready returns true if the store is opened.
func (p *Pebble) Ready() bool {
	return p != nil && p.db != nil
}

// Path returns the on-disk location of the store.
func (p *Pebble) Path() string { return p.path }

// chooses sync/no-sync WriteOptions, always disables sync if WAL disabled
func (p *Pebble) writeOpt(requestSync bool) *pebble.WriteOptions {
	if requestSync && !p.walDisabled {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (p *Pebble) SetProperty(name, value string) error {
	if p.db == nil {
		return fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	rec := models.Property{Name: name, Value: value, UpdatedTS: timeutil.Now().UnixNano()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal property: %w", err)
	}
	if err := p.db.Set(propKey(name), data, p.writeOpt(true)); err != nil {
		logger.Error("property_set_failed", "name", name, "error", err)
		return err
	}
	logger.Debug("property_set", "name", name)
	return nil
}

func (p *Pebble) GetProperty(name string) (models.Property, error) {
	if p.db == nil {
		return models.Property{}, fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	v, closer, err := p.db.Get(propKey(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Property{}, ErrNotFound
		}
		logger.Error("property_get_failed", "name", name, "error", err)
		return models.Property{}, err
	}
	defer closer.Close()
	var rec models.Property
	if err := json.Unmarshal(v, &rec); err != nil {
		return models.Property{}, fmt.Errorf("invalid property record: %w", err)
	}
	return rec, nil
}

// ApplyBatch writes all updates in one atomic pebble batch.
func (p *Pebble) ApplyBatch(updates []Update) error {
	if p.db == nil {
		return fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	if len(updates) == 0 {
		return nil
	}
	now := timeutil.Now().UnixNano()
	batch := new(pebble.Batch)
	for _, u := range updates {
		rec := models.Property{Name: u.Name, Value: u.Value, UpdatedTS: now}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal property: %w", err)
		}
		if err := batch.Set(propKey(u.Name), data, p.writeOpt(true)); err != nil {
			return err
		}
	}
	if err := p.db.Apply(batch, p.writeOpt(true)); err != nil {
		logger.Error("apply_batch_failed", "updates", len(updates), "error", err)
		return err
	}
	return nil
}

func (p *Pebble) ListProperties(prefix string, limit int) ([]models.Property, error) {
	if p.db == nil {
		return nil, fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	pfx := []byte(propPrefix + prefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Property
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		var rec models.Property
		if err := json.Unmarshal(v, &rec); err != nil {
			logger.Error("list_properties_invalid_record", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

func (p *Pebble) SaveSnapshot(snap models.MetricsSnapshot) error {
	if p.db == nil {
		return fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := p.db.Set(snapKey(snap.Scope, snap.TS), data, p.writeOpt(true)); err != nil {
		logger.Error("snapshot_save_failed", "scope", snap.Scope, "error", err)
		return err
	}
	logger.Debug("snapshot_saved", "scope", snap.Scope, "ts", snap.TS)
	return nil
}

func (p *Pebble) ListSnapshots(limit int) ([]models.MetricsSnapshot, error) {
	if p.db == nil {
		return nil, fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	pfx := []byte(snapPrefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.MetricsSnapshot
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		var snap models.MetricsSnapshot
		if err := json.Unmarshal(v, &snap); err != nil {
			logger.Error("list_snapshots_invalid_record", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, snap)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// PruneSnapshots keeps the newest keep snapshots per scope and deletes the
// rest. It returns the number of deleted snapshot keys.
func (p *Pebble) PruneSnapshots(keep int) (int, error) {
	if p.db == nil {
		return 0, fmt.Errorf("pebble not opened; call surface.OpenPebble first")
	}
	if keep < 0 {
		return 0, nil
	}
	pfx := []byte(snapPrefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	// keys within one scope iterate oldest to newest thanks to the padded ts
	byScope := make(map[string][][]byte)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		s := string(k[len(snapPrefix):])
		if i := strings.LastIndex(s, ":"); i >= 0 {
			s = s[:i]
		}
		byScope[s] = append(byScope[s], k)
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	deleted := 0
	for scope, keys := range byScope {
		if len(keys) <= keep {
			continue
		}
		for _, k := range keys[:len(keys)-keep] {
			if err := p.db.Delete(k, p.writeOpt(true)); err != nil {
				logger.Error("snapshot_prune_failed", "scope", scope, "key", string(k), "error", err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
