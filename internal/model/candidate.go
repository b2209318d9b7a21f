package model

import "time"

// CandidateRegistration is one entry from a state's published registration
// index (the list of registration numbers the portal advertises). The
// crawler uses this table as its frontier; delta runs diff it against the
// scrape cache.
type CandidateRegistration struct {
	StateCode      string    `json:"state_code"`
	RegistrationNo string    `json:"registration_no"`
	ProjectName    string    `json:"project_name,omitempty"`
	District       string    `json:"district,omitempty"`
	ListedAt       time.Time `json:"listed_at"`
}
