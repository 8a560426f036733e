package redact

import "github.com/ppiankov/accessgate/internal/model"

// DefaultPIIKeys are personal identifiers no holder below Elevated sees.
var DefaultPIIKeys = []string{
	"ssn", "social_security", "passport", "drivers_license",
	"credit_card", "card_number", "bank_account",
}

// DefaultFilters returns the canonical filter set. Each step up in clearance
// sees strictly more of the record.
func DefaultFilters() []ClearanceFilter {
	return []ClearanceFilter{
		{
			ID:             CanonicalID(model.ClearanceBasic),
			Name:           "basic",
			MinClearance:   model.ClearanceBasic,
			MaxSensitivity: model.SensInternal,
			ExcludedFields: append([]string{"informant_identity", "witness_address", "criminal_history"}, DefaultPIIKeys...),
			FieldMasks: map[string]string{
				"dob":     "****-**-**",
				"phone":   DefaultMask,
				"email":   DefaultMask,
				"address": DefaultMask,
			},
			ScrubPatterns: []PatternType{PatternSSN, PatternEmail, PatternPhone, PatternCard},
		},
		{
			ID:             CanonicalID(model.ClearanceStandard),
			Name:           "standard",
			MinClearance:   model.ClearanceStandard,
			MaxSensitivity: model.SensRestricted,
			ExcludedFields: append([]string{"informant_identity", "witness_address"}, DefaultPIIKeys...),
			FieldMasks: map[string]string{
				"dob": "****-**-**",
			},
			ScrubPatterns: []PatternType{PatternSSN, PatternCard},
		},
		{
			ID:             CanonicalID(model.ClearanceElevated),
			Name:           "elevated",
			MinClearance:   model.ClearanceElevated,
			MaxSensitivity: model.SensConfidential,
			ExcludedFields: []string{"informant_identity"},
			FieldMasks: map[string]string{
				"ssn": "***-**-****",
			},
		},
		{
			ID:             CanonicalID(model.ClearanceHigh),
			Name:           "high",
			MinClearance:   model.ClearanceHigh,
			MaxSensitivity: model.SensSecret,
			ExcludedFields: []string{"informant_identity"},
		},
	}
}
