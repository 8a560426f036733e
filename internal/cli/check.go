package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/accessgate/internal/client"
	"github.com/ppiankov/accessgate/internal/model"
)

var (
	checkTenant        string
	checkUser          string
	checkResourceType  string
	checkResourceID    string
	checkAction        string
	checkClearance     string
	checkSensitivity   string
	checkRoles         []string
	checkJurisdictions []string
	checkAttrs         map[string]string
	checkSourceIP      string
	checkExplain       bool
	checkFormat        string
	checkAddr          string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	f := checkCmd.Flags()
	f.StringVar(&checkTenant, "tenant", "", "Tenant that owns the resource (required)")
	f.StringVar(&checkUser, "user", "", "Requesting user (required)")
	f.StringVar(&checkResourceType, "resource-type", "", "Resource type, e.g. case_file (required)")
	f.StringVar(&checkResourceID, "resource-id", "", "Resource identifier")
	f.StringVar(&checkAction, "action", "read", "Action")
	f.StringVar(&checkClearance, "clearance", "none", "Claimed clearance")
	f.StringVar(&checkSensitivity, "sensitivity", "public", "Resource sensitivity")
	f.StringSliceVar(&checkRoles, "role", nil, "Claimed role (repeatable)")
	f.StringSliceVar(&checkJurisdictions, "jurisdiction", nil, "Claimed jurisdiction (repeatable)")
	f.StringToStringVar(&checkAttrs, "attr", nil, "Resource attribute key=value; values are parsed as YAML scalars")
	f.StringVar(&checkSourceIP, "source-ip", "", "Client address")
	f.BoolVar(&checkExplain, "explain", false, "Print the per-policy trace")
	f.StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	f.StringVar(&checkAddr, "addr", "", "Ask a running server at host:port instead of evaluating locally")
	for _, name := range []string{"tenant", "user", "resource-type"} {
		_ = checkCmd.MarkFlagRequired(name)
	}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one access request",
	Long: "Builds an access request from flags and evaluates it against the\n" +
		"configured bundle, or against a running server with --addr.\n" +
		"The decision is recorded in the audit chain like any other.\n\n" +
		"Exit code 0 on allow, 1 on any other decision.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	req, err := buildCheckRequest()
	if err != nil {
		return err
	}

	res, err := evaluateCheck(cmd.Context(), req)
	if err != nil && res.Decision == "" {
		return err
	}
	printCheckResult(os.Stdout, res, checkFormat)
	if err != nil {
		return err
	}
	if !res.Allowed() {
		os.Exit(1)
	}
	return nil
}

// evaluateCheck asks the server at --addr, or a local gateway that is
// closed before returning.
func evaluateCheck(ctx context.Context, req *model.AccessRequest) (model.AccessResult, error) {
	type evaluator func(context.Context, *model.AccessRequest) (model.AccessResult, error)
	pick := func(eval, explain evaluator) evaluator {
		if checkExplain {
			return explain
		}
		return eval
	}

	if checkAddr != "" {
		c, err := client.New(checkAddr)
		if err != nil {
			return model.AccessResult{}, err
		}
		defer c.Close()
		return pick(c.Evaluate, c.Explain)(ctx, req)
	}

	gw, logger, _, err := openGateway()
	if err != nil {
		return model.AccessResult{}, err
	}
	defer logger.Sync()
	defer gw.Close()
	return pick(gw.EvaluateAccess, gw.ExplainAccess)(ctx, req)
}

func buildCheckRequest() (*model.AccessRequest, error) {
	cl, err := model.ParseClearance(checkClearance)
	if err != nil {
		return nil, err
	}
	sens, err := model.ParseSensitivity(checkSensitivity)
	if err != nil {
		return nil, err
	}
	attrs, err := parseAttrs(checkAttrs)
	if err != nil {
		return nil, err
	}
	return &model.AccessRequest{
		TenantID:               checkTenant,
		UserID:                 checkUser,
		ResourceType:           checkResourceType,
		ResourceID:             checkResourceID,
		Action:                 checkAction,
		RequesterClearance:     cl,
		RequesterRoles:         checkRoles,
		RequesterJurisdictions: checkJurisdictions,
		Attributes:             attrs,
		ResourceSensitivity:    sens,
		SourceIP:               checkSourceIP,
	}, nil
}

// parseAttrs types each value as YAML would, so "3" compares as a number
// and "true" as a bool.
func parseAttrs(raw map[string]string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for k, s := range raw {
		var val any
		if err := yaml.Unmarshal([]byte(s), &val); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func printCheckResult(w io.Writer, res model.AccessResult, format string) {
	if format == "json" {
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(w, string(out))
		return
	}

	decision := strings.ToUpper(string(res.Decision))
	if res.Allowed() {
		decision = okFmt(decision)
	} else {
		decision = errFmt(decision)
	}
	fmt.Fprintf(w, "%s  %s\n", decision, res.Reason)
	if res.MatchedPolicyID != "" {
		fmt.Fprintf(w, "  policy:   %s\n", res.MatchedPolicyID)
	}
	if len(res.RedactedFields) > 0 {
		fmt.Fprintf(w, "  redacted: %s\n", strings.Join(res.RedactedFields, ", "))
	}
	if res.AuditEntryID != "" {
		fmt.Fprintf(w, "  audit:    %s\n", dimFmt(res.AuditEntryID))
	} else {
		fmt.Fprintf(w, "  audit:    %s\n", warnFmt("not recorded"))
	}
	for _, line := range res.Trace {
		fmt.Fprintf(w, "  %s %s\n", dimFmt("|"), line)
	}
}
