package api

// UpdateRequest is the body of POST /v1/updates.
type UpdateRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Scope string `json:"scope,omitempty"`
}

// BatchUpdate is one entry of the POST /v1/updates/batch array body.
type BatchUpdate struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// QueuedResponse acknowledges accepted updates with the current queue depth.
type QueuedResponse struct {
	Scope   string `json:"scope"`
	Queued  int    `json:"queued"`
	Pending int    `json:"pending"`
}

// FlushResponse reports a forced flush.
type FlushResponse struct {
	Status string   `json:"status"`
	Scopes []string `json:"scopes"`
}

// ScopeResponse reports a scope lifecycle change.
type ScopeResponse struct {
	Scope     string `json:"scope"`
	Destroyed bool   `json:"destroyed,omitempty"`
}
