package domain

import "time"

// ActionSettingsUpdate is recorded for every successful settings mutation.
const ActionSettingsUpdate = "settings.update"

// ActivityEntry is one audit record of a user action.
type ActivityEntry struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
