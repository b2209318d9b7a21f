// Package digest computes content hashes for change detection. Two
// structurally identical payloads scraped at different times hash
// identically; any change to a comparison-relevant field changes the hash.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/propdata/rera-ingest/internal/model"
)

// registrationDomain is the versioned domain prefix. Bump the version if
// the canonical layout ever changes, so old and new hashes cannot collide.
const registrationDomain = "rera-ingest/registration/v1"

// canonicalRegistration fixes the field set and order that participate in
// change detection. Volatile scrape metadata (ScrapedAt, SourceURL) is
// excluded. Child collections are sorted by natural sub-key so parser
// emission order cannot affect the hash.
type canonicalRegistration struct {
	StateCode      string `json:"state_code"`
	RegistrationNo string `json:"registration_no"`
	ProjectName    string `json:"project_name"`
	Address        string `json:"address"`
	PromoterName   string `json:"promoter_name"`
	District       string `json:"district"`
	ProjectType    string `json:"project_type"`
	Status         string `json:"status"`
	ApprovedOn     string `json:"approved_on"`
	ExpiresOn      string `json:"expires_on"`

	Buildings       []model.BuildingInput       `json:"buildings"`
	UnitTypes       []model.UnitTypeInput       `json:"unit_types"`
	BankAccounts    []model.BankAccountInput    `json:"bank_accounts"`
	Documents       []model.DocumentInput       `json:"documents"`
	PeriodicUpdates []model.PeriodicUpdateInput `json:"periodic_updates"`
}

// Registration returns the SHA-256 content hash of a source record,
// hex-encoded. Deterministic and total: the canonical form contains only
// JSON-decodable scalars, so marshaling cannot fail in practice.
func Registration(rec model.SourceRecord) string {
	c := canonicalize(rec)
	payload, _ := json.Marshal(c)

	h := sha256.New()
	h.Write([]byte(registrationDomain))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalize(rec model.SourceRecord) canonicalRegistration {
	c := canonicalRegistration{
		StateCode:      rec.StateCode,
		RegistrationNo: rec.RegistrationNo,
		ProjectName:    rec.ProjectName,
		Address:        rec.Address,
		PromoterName:   rec.PromoterName,
		District:       rec.District,
		ProjectType:    rec.ProjectType,
		Status:         rec.Status,
		ApprovedOn:     rec.ApprovedOn,
		ExpiresOn:      rec.ExpiresOn,

		// Non-nil even when empty so a missing collection and an empty one
		// serialize the same way.
		Buildings:       append(make([]model.BuildingInput, 0, len(rec.Buildings)), rec.Buildings...),
		UnitTypes:       append(make([]model.UnitTypeInput, 0, len(rec.UnitTypes)), rec.UnitTypes...),
		BankAccounts:    append(make([]model.BankAccountInput, 0, len(rec.BankAccounts)), rec.BankAccounts...),
		Documents:       append(make([]model.DocumentInput, 0, len(rec.Documents)), rec.Documents...),
		PeriodicUpdates: append(make([]model.PeriodicUpdateInput, 0, len(rec.PeriodicUpdates)), rec.PeriodicUpdates...),
	}

	sort.SliceStable(c.Buildings, func(i, j int) bool { return c.Buildings[i].Name < c.Buildings[j].Name })
	sort.SliceStable(c.UnitTypes, func(i, j int) bool { return c.UnitTypes[i].Label < c.UnitTypes[j].Label })
	sort.SliceStable(c.BankAccounts, func(i, j int) bool { return c.BankAccounts[i].AccountNo < c.BankAccounts[j].AccountNo })
	sort.SliceStable(c.Documents, func(i, j int) bool { return c.Documents[i].Kind < c.Documents[j].Kind })
	sort.SliceStable(c.PeriodicUpdates, func(i, j int) bool { return c.PeriodicUpdates[i].Period < c.PeriodicUpdates[j].Period })

	return c
}
