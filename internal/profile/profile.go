package profile

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ppiankov/accessgate/internal/model"
)

var (
	ErrNotFound       = errors.New("profile not found")
	ErrInvalidProfile = errors.New("invalid profile")
)

// ABACProfile is the clearance, roles and jurisdictions of one user within
// one tenant. The evaluator takes the subject from here, not from the request.
type ABACProfile struct {
	TenantID             string              `yaml:"tenant_id" json:"tenant_id"`
	UserID               string              `yaml:"user_id" json:"user_id"`
	Clearance            model.Clearance     `yaml:"clearance" json:"clearance"`
	Roles                []string            `yaml:"roles,omitempty" json:"roles,omitempty"`
	Jurisdictions        []string            `yaml:"jurisdictions,omitempty" json:"jurisdictions,omitempty"`
	AllowedSensitivities []model.Sensitivity `yaml:"allowed_sensitivities,omitempty" json:"allowed_sensitivities,omitempty"`
	UserAttributes       map[string]any      `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	MFARequired          bool                `yaml:"mfa_required,omitempty" json:"mfa_required,omitempty"`
	SessionTimeout       time.Duration       `yaml:"session_timeout,omitempty" json:"session_timeout,omitempty"`
}

// Key is the registry key for a profile.
func Key(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// Validate checks that a profile is well-formed.
func (p *ABACProfile) Validate() error {
	if strings.TrimSpace(p.TenantID) == "" || strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: tenant_id and user_id are required", ErrInvalidProfile)
	}
	if !p.Clearance.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidProfile, Key(p.TenantID, p.UserID), model.ErrInvalidClearance)
	}
	for _, s := range p.AllowedSensitivities {
		if !s.Valid() {
			return fmt.Errorf("%w: %s: %w", ErrInvalidProfile, Key(p.TenantID, p.UserID), model.ErrInvalidSensitivity)
		}
	}
	if p.SessionTimeout < 0 {
		return fmt.Errorf("%w: %s: negative session_timeout", ErrInvalidProfile, Key(p.TenantID, p.UserID))
	}
	return nil
}

// AllowsSensitivity reports whether the profile may touch a resource of the
// given sensitivity. An empty AllowedSensitivities list places no limit
// beyond clearance.
func (p *ABACProfile) AllowsSensitivity(s model.Sensitivity) bool {
	if len(p.AllowedSensitivities) == 0 {
		return true
	}
	return slices.Contains(p.AllowedSensitivities, s)
}

// Clone returns a deep copy.
func (p ABACProfile) Clone() ABACProfile {
	p.Roles = slices.Clone(p.Roles)
	p.Jurisdictions = slices.Clone(p.Jurisdictions)
	p.AllowedSensitivities = slices.Clone(p.AllowedSensitivities)
	p.UserAttributes = maps.Clone(p.UserAttributes)
	return p
}
