package bundle

// DefaultYAML returns the annotated starter bundle written by `accessgate init`.
func DefaultYAML() string {
	return `# accessgate bundle
# Generated by: accessgate init
#
# Evaluation order (cannot be changed):
#   1. ABAC profile lookup          -> deny "no ABAC profile"
#   2. clearance vs sensitivity     -> deny "insufficient clearance"
#   3. profile allowed_sensitivities -> deny
#   4. policies by ascending priority; the first full match decides
#   5. nothing matched              -> deny "no matching allow policy"
# Every decision, allow or deny, is appended to the hash-chained audit log.

# Clearance:   none < basic < standard < elevated < high < top < compartmented
# Sensitivity: public < internal < restricted < confidential < secret < top_secret

policies:
  - id: policy-detective-case-read
    name: detectives read open case files
    tenant_id: metro-pd
    priority: 10
    effect: allow
    required_clearance: standard
    required_roles: [detective]
    allowed_actions: [read, list]
    resource_patterns: [case_file, evidence]
    conditions:
      - attribute_type: resource
        attribute_name: status
        operator: not_equals
        value: sealed
    enabled: true
    audit_on_match: true

  - id: policy-no-export
    name: nobody exports evidence
    priority: 5
    effect: deny
    allowed_actions: [export]
    resource_patterns: [evidence]
    enabled: true
    audit_on_match: true

  - id: policy-default-deny
    name: default-deny
    priority: 1000
    effect: deny
    resource_patterns: ["*"]
    enabled: true
    audit_on_match: true

# Profiles can start from a built-in template (analyst, auditor, detective,
# supervisor); fields given here override the template.
profiles:
  - tenant_id: metro-pd
    user_id: det-harris
    template: detective
    jurisdictions: [north, central]

  - tenant_id: metro-pd
    user_id: analyst-kim
    template: analyst

# Omit the filters section to keep the four built-in clearance filters.
# filters:
#   - id: filter-basic
#     name: basic
#     min_clearance: basic
#     max_sensitivity: internal
#     excluded_fields: [informant_identity, witness_address]
#     field_masks: {dob: "****-**-**"}
#     scrub_patterns: [SSN, EMAIL]

domains:
  - tenant_id: metro-pd
    domain_name: municipal
    cross_domain_allowed: true
    allowed_domains: [county]

  - tenant_id: county-so
    domain_name: county
    cross_domain_allowed: true
    allowed_domains: [municipal]

encryption:
  - tenant_id: metro-pd
    algorithm: AES-256-GCM
    rotation_days: 90
`
}
