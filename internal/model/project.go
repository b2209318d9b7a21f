package model

import "time"

// IdentityTriple is the normalized (name, address, promoter) key that
// decides whether two registrations belong to the same real-world project.
// All three components are already normalized; empty components participate
// as empty strings.
type IdentityTriple struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Promoter string `json:"promoter"`
}

// ParentProject is the umbrella entity grouping all registrations that share
// an identity triple (phases, renewals, re-registrations of one project).
// The normalized identity fields are immutable once the row exists; only the
// display fields may refresh on later scrapes.
type ParentProject struct {
	ID                 string    `json:"id"`
	NormalizedName     string    `json:"normalized_name"`
	NormalizedAddress  string    `json:"normalized_address"`
	NormalizedPromoter string    `json:"normalized_promoter"`
	DisplayName        string    `json:"display_name"`
	DisplayAddress     string    `json:"display_address"`
	DisplayPromoter    string    `json:"display_promoter"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Triple returns the parent's identity key.
func (p *ParentProject) Triple() IdentityTriple {
	return IdentityTriple{
		Name:     p.NormalizedName,
		Address:  p.NormalizedAddress,
		Promoter: p.NormalizedPromoter,
	}
}
