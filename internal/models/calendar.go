package models

// Calendar is an entry in a provider's calendar list.
type Calendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary"`
	Selected    bool   `json:"selected"`
}
