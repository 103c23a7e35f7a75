package models

// ScoreRequest is the payload for POST /api/v1/score.
type ScoreRequest struct {
	// URL is the website to score. Required.
	URL string `json:"url" binding:"required,url"`

	// WebhookURL, when set, receives score.tier progress events after each
	// tier completes and a score.completed / score.failed event at the end.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// MaxAge is the maximum acceptable age in milliseconds of a cached
	// result. 0 (default) bypasses the cache entirely.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// Development permits loopback and private-range targets. Only honored
	// when the server itself runs in development mode.
	Development bool `json:"development,omitempty"`
}
