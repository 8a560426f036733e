// Package accessgate embeds the access gateway in a Go process. It evaluates
// attribute-based policies, records every decision in a hash-chained audit
// trail and redacts payloads for the caller's clearance.
//
// Usage:
//
//	ag, err := accessgate.New(accessgate.WithBundle("bundle.yaml"))
//	defer ag.Close()
//	fetch := ag.Wrap(loadCaseFile)
//	record, err := fetch(ctx, accessgate.Request{
//	    TenantID:            "metro-pd",
//	    UserID:              "det-harris",
//	    ResourceType:        "case_file",
//	    ResourceID:          "case-2291",
//	    Action:              "read",
//	    ResourceSensitivity: accessgate.SensRestricted,
//	})
//
// The SDK links directly against internal packages; external users import
// github.com/ppiankov/accessgate/sdk/go/accessgate.
package accessgate
