package reconcile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Action is what happens to a stored child row that is missing from the
// latest scrape.
type Action string

const (
	// ActionDelete removes the row.
	ActionDelete Action = "delete"
	// ActionFlag keeps the row and marks it inactive. Used for collections
	// where silent data loss is unacceptable (bank accounts, filings).
	ActionFlag Action = "flag"
)

// Collection names, as they appear in policy files and provenance diffs.
const (
	CollectionBuildings       = "buildings"
	CollectionUnitTypes       = "unit_types"
	CollectionBankAccounts    = "bank_accounts"
	CollectionDocuments       = "documents"
	CollectionPeriodicUpdates = "periodic_updates"
)

// Policies maps each child collection to its removal action.
type Policies struct {
	Buildings       Action
	UnitTypes       Action
	BankAccounts    Action
	Documents       Action
	PeriodicUpdates Action
}

// DefaultPolicies returns the shipped defaults: structural collections are
// hard-deleted when they disappear, financial/legal collections are flagged.
func DefaultPolicies() Policies {
	return Policies{
		Buildings:       ActionDelete,
		UnitTypes:       ActionDelete,
		BankAccounts:    ActionFlag,
		Documents:       ActionFlag,
		PeriodicUpdates: ActionFlag,
	}
}

// policyFile is the YAML shape:
//
//	removal_policies:
//	  buildings: delete
//	  bank_accounts: flag
type policyFile struct {
	RemovalPolicies map[string]string `yaml:"removal_policies"`
}

// LoadPolicies reads a policy file and overlays it on the defaults.
// An empty path returns the defaults unchanged. Unknown collection names
// and unknown actions are rejected so typos cannot silently fall back to
// deleting rows.
func LoadPolicies(path string) (Policies, error) {
	p := DefaultPolicies()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "reconcile: read policy file %s", path)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return p, eris.Wrapf(err, "reconcile: parse policy file %s", path)
	}

	for name, raw := range pf.RemovalPolicies {
		action := Action(raw)
		if action != ActionDelete && action != ActionFlag {
			return p, eris.Errorf("reconcile: unknown action %q for collection %q", raw, name)
		}
		switch name {
		case CollectionBuildings:
			p.Buildings = action
		case CollectionUnitTypes:
			p.UnitTypes = action
		case CollectionBankAccounts:
			p.BankAccounts = action
		case CollectionDocuments:
			p.Documents = action
		case CollectionPeriodicUpdates:
			p.PeriodicUpdates = action
		default:
			return p, eris.Errorf("reconcile: unknown collection %q in policy file", name)
		}
	}

	return p, nil
}

// For returns the action for a collection name, defaulting to flag so an
// unrecognized name can never trigger a hard delete.
func (p Policies) For(collection string) Action {
	switch collection {
	case CollectionBuildings:
		return p.Buildings
	case CollectionUnitTypes:
		return p.UnitTypes
	case CollectionBankAccounts:
		return p.BankAccounts
	case CollectionDocuments:
		return p.Documents
	case CollectionPeriodicUpdates:
		return p.PeriodicUpdates
	default:
		return ActionFlag
	}
}
