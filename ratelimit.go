package relay

import "time"

// RateLimit is a provider rate-limit snapshot for one resource, e.g.
// "requests" or "input-tokens". Fields absent from the response
// headers stay nil.
type RateLimit struct {
	Name      string     `json:"name"`
	Limit     *int       `json:"limit,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}
