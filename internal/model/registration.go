package model

import "time"

// Registration is one official registration row, unique per
// (state_code, registration_no). A parent project may own several of these
// across phases and renewal cycles.
//
// ScrapedAt moves whenever scraped content is applied (insert or update);
// LastCheckedAt moves on every sighting, including the unchanged fast path.
// UpdatedAt tracks content updates only.
type Registration struct {
	ID              string    `json:"id"`
	ParentProjectID string    `json:"parent_project_id"`
	StateCode       string    `json:"state_code"`
	RegistrationNo  string    `json:"registration_no"`
	ProjectName     string    `json:"project_name"`
	Address         string    `json:"address"`
	PromoterName    string    `json:"promoter_name"`
	District        string    `json:"district,omitempty"`
	ProjectType     string    `json:"project_type,omitempty"`
	Status          string    `json:"status,omitempty"`
	ApprovedOn      string    `json:"approved_on,omitempty"`
	ExpiresOn       string    `json:"expires_on,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	ContentHash     string    `json:"content_hash"`
	ScrapedAt       time.Time `json:"scraped_at"`
	LastCheckedAt   time.Time `json:"last_checked_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Building is a stored building/tower row. SubKey: name.
type Building struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Name           string    `json:"name"`
	Floors         int       `json:"floors"`
	Units          int       `json:"units"`
	Status         string    `json:"status,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UnitType is a stored unit-configuration row. SubKey: label.
type UnitType struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Label          string    `json:"label"`
	CarpetAreaSqm  float64   `json:"carpet_area_sqm"`
	Count          int       `json:"count"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BankAccount is a stored project bank account row. SubKey: account_no.
// Removal policy defaults to flag: accounts that drop out of a scrape are
// marked inactive, never deleted.
type BankAccount struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	AccountNo      string    `json:"account_no"`
	BankName       string    `json:"bank_name,omitempty"`
	IFSC           string    `json:"ifsc,omitempty"`
	Branch         string    `json:"branch,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Document is a stored filing row. SubKey: kind.
type Document struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title,omitempty"`
	URL            string    `json:"url,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PeriodicUpdate is a stored quarterly progress filing. SubKey: period.
type PeriodicUpdate struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Period         string    `json:"period"`
	ReportedOn     string    `json:"reported_on,omitempty"`
	Description    string    `json:"description,omitempty"`
	PercentDone    float64   `json:"percent_done"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RegistrationDetail bundles a registration with its child collections for
// read paths (CLI display, audit endpoint).
type RegistrationDetail struct {
	Registration    Registration     `json:"registration"`
	Buildings       []Building       `json:"buildings,omitempty"`
	UnitTypes       []UnitType       `json:"unit_types,omitempty"`
	BankAccounts    []BankAccount    `json:"bank_accounts,omitempty"`
	Documents       []Document       `json:"documents,omitempty"`
	PeriodicUpdates []PeriodicUpdate `json:"periodic_updates,omitempty"`
}
