package profile

import (
	"embed"
	"fmt"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Templates returns the sorted names of the built-in role templates.
func Templates() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	slices.Sort(names)
	return names
}

// FromTemplate builds a profile for tenant/user from a built-in role template.
func FromTemplate(name, tenantID, userID string) (ABACProfile, error) {
	data, err := templateFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		return ABACProfile{}, fmt.Errorf("%w: unknown template %q", ErrInvalidProfile, name)
	}
	var p ABACProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return ABACProfile{}, fmt.Errorf("profile: parse template %q: %w", name, err)
	}
	p.TenantID = tenantID
	p.UserID = userID
	return p, p.Validate()
}
