// Package activity is the best-effort audit trail: who did what, from
// where, when. Recording never fails the triggering operation -- a broken
// activity log is a nuisance, a blocked upload is a defect.
package activity

import "time"

// retentionDays is how long activity entries are kept before pruning.
const retentionDays = 90

// Entry is one recorded event. UserID is empty for anonymous actors
// (failed logins, access-code guesses).
type Entry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
