package models

// User is owned by the external credential service; the messaging core only
// reads it and tracks presence separately.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Status    string `json:"status,omitempty"`
	Location  string `json:"location,omitempty"`
	Onboarded bool   `json:"onboarded,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}
