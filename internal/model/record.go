package model

import "time"

// SourceRecord is one parsed registration payload handed over by the
// scraper/parser. The wire format is JSON; field cleaning (date parsing,
// numeric coercion) happens upstream, so values arrive ready to store.
type SourceRecord struct {
	StateCode      string `json:"state_code"`
	RegistrationNo string `json:"registration_no"`
	ProjectName    string `json:"project_name"`
	Address        string `json:"address"`
	PromoterName   string `json:"promoter_name"`
	District       string `json:"district,omitempty"`
	ProjectType    string `json:"project_type,omitempty"`
	Status         string `json:"status,omitempty"`
	ApprovedOn     string `json:"approved_on,omitempty"` // as published, e.g. "18/05/2025"
	ExpiresOn      string `json:"expires_on,omitempty"`

	Buildings       []BuildingInput       `json:"buildings,omitempty"`
	UnitTypes       []UnitTypeInput       `json:"unit_types,omitempty"`
	BankAccounts    []BankAccountInput    `json:"bank_accounts,omitempty"`
	Documents       []DocumentInput       `json:"documents,omitempty"`
	PeriodicUpdates []PeriodicUpdateInput `json:"periodic_updates,omitempty"`

	SourceURL string    `json:"source_url,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// BuildingInput is a building/tower block as published on the portal.
type BuildingInput struct {
	Name   string `json:"name"`
	Floors int    `json:"floors,omitempty"`
	Units  int    `json:"units,omitempty"`
	Status string `json:"status,omitempty"`
}

// UnitTypeInput is a unit configuration row (e.g. "2BHK", "SHOP").
type UnitTypeInput struct {
	Label         string  `json:"label"`
	CarpetAreaSqm float64 `json:"carpet_area_sqm,omitempty"`
	Count         int     `json:"count,omitempty"`
}

// BankAccountInput is a designated project bank account.
type BankAccountInput struct {
	AccountNo string `json:"account_no"`
	BankName  string `json:"bank_name,omitempty"`
	IFSC      string `json:"ifsc,omitempty"`
	Branch    string `json:"branch,omitempty"`
}

// DocumentInput is an uploaded filing, keyed by its document kind
// (e.g. "approved_layout", "encumbrance_certificate").
type DocumentInput struct {
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// PeriodicUpdateInput is a quarterly progress filing, keyed by period label
// (e.g. "2025-Q4").
type PeriodicUpdateInput struct {
	Period      string  `json:"period"`
	ReportedOn  string  `json:"reported_on,omitempty"`
	Description string  `json:"description,omitempty"`
	PercentDone float64 `json:"percent_done,omitempty"`
}
