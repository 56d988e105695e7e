package models

// Property is the stored record for a single property on a surface.
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	UpdatedTS int64  `json:"updated_ts"`
}

// CoordinatorMetrics is the flush performance counter set exposed by a
// coordinator. LastFlushTS is zero until the first executed flush.
type CoordinatorMetrics struct {
	Scope          string  `json:"scope,omitempty"`
	FlushCount     uint64  `json:"flush_count"`
	AvgFlushMs     float64 `json:"avg_flush_ms"`
	LastFlushTS    int64   `json:"last_flush_ts"`
	PendingUpdates int     `json:"pending_updates"`
}

// MetricsSnapshot is a point-in-time copy of a coordinator's metrics,
// persisted by the janitor for later inspection.
type MetricsSnapshot struct {
	Scope          string  `json:"scope"`
	TS             int64   `json:"ts"`
	FlushCount     uint64  `json:"flush_count"`
	AvgFlushMs     float64 `json:"avg_flush_ms"`
	LastFlushTS    int64   `json:"last_flush_ts"`
	PendingUpdates int     `json:"pending_updates"`
}
