package models

// ScoreResponse is the response for POST /api/v1/score.
type ScoreResponse struct {
	// Success indicates whether scoring completed. A run that degraded to
	// fallback or skipped criteria still counts as a success; only
	// acquisition failure and invalid input produce Success=false.
	Success bool `json:"success"`

	// Result is the completed scoring output. Nil when Success is false.
	Result *EffectivenessResult `json:"result,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// AcquisitionMs is the time spent fetching and rendering the page.
	AcquisitionMs int64 `json:"acquisition_ms"`

	// ScoringMs is the time spent running the three tiers.
	ScoringMs int64 `json:"scoring_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string            `json:"status"` // "healthy" or "degraded"
	Uptime    string            `json:"uptime"`
	PoolStats PoolStats         `json:"pool_stats"`
	Breakers  map[string]string `json:"breakers"` // criterion → circuit state
	Version   string            `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
