package protocol

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/gobwas/glob"
)

// DelegationTool is the capability that lets an agent spawn further agents.
// Teammates never get it, so a team cannot recurse into itself.
const DelegationTool = "delegate"

// Role distinguishes the coordinating member from the workers.
type Role string

const (
	// RoleLead is the coordinator. It never runs a worker and never owns work items.
	RoleLead Role = "lead"
	// RoleWorker is an ordinary teammate.
	RoleWorker Role = "worker"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if this is a recognized role value.
func (r Role) IsValid() bool {
	return r == RoleLead || r == RoleWorker
}

// ToolPolicy restricts which tools a teammate may invoke and whether its
// board tasks need plan approval before execution.
//
// Fields not modelled here are kept in Extra and written back unchanged.
type ToolPolicy struct {
	Allowlist           []string
	Denylist            []string
	RequirePlanApproval *bool
	Extra               map[string]json.RawMessage
}

var toolPolicyKeys = []string{"allowlist", "denylist", "require_plan_approval"}

// RequiresPlanApproval reports the effective approval flag (unset means false).
func (p ToolPolicy) RequiresPlanApproval() bool {
	return p.RequirePlanApproval != nil && *p.RequirePlanApproval
}

// Normalized returns a copy whose denylist always contains DelegationTool.
func (p ToolPolicy) Normalized() ToolPolicy {
	out := p.clone()
	if !slices.Contains(out.Denylist, DelegationTool) {
		out.Denylist = append(out.Denylist, DelegationTool)
	}
	return out
}

func (p ToolPolicy) clone() ToolPolicy {
	out := ToolPolicy{
		Allowlist: slices.Clone(p.Allowlist),
		Denylist:  slices.Clone(p.Denylist),
	}
	if p.RequirePlanApproval != nil {
		v := *p.RequirePlanApproval
		out.RequirePlanApproval = &v
	}
	if len(p.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// Allows reports whether tool may be used. Patterns are globs ("fs.*").
// The denylist wins over the allowlist, and an empty allowlist allows
// everything not denied.
func (p ToolPolicy) Allows(tool string) bool {
	if matchAny(p.Denylist, tool) {
		return false
	}
	if len(p.Allowlist) == 0 {
		return true
	}
	return matchAny(p.Allowlist, tool)
}

var (
	globMu    sync.Mutex
	globCache = map[string]glob.Glob{}
)

func compiled(pattern string) glob.Glob {
	globMu.Lock()
	defer globMu.Unlock()
	if g, ok := globCache[pattern]; ok {
		return g
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		// Malformed patterns only match themselves literally.
		g = glob.MustCompile(glob.QuoteMeta(pattern))
	}
	globCache[pattern] = g
	return g
}

func matchAny(patterns []string, tool string) bool {
	for _, pattern := range patterns {
		if compiled(pattern).Match(tool) {
			return true
		}
	}
	return false
}

// MarshalJSON writes the known fields and every preserved unknown field.
func (p ToolPolicy) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	allow := p.Allowlist
	if allow == nil {
		allow = []string{}
	}
	deny := p.Denylist
	if deny == nil {
		deny = []string{}
	}
	out["allowlist"] = allow
	out["denylist"] = deny
	if p.RequirePlanApproval != nil {
		out["require_plan_approval"] = *p.RequirePlanApproval
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps the rest in Extra.
func (p *ToolPolicy) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out ToolPolicy
	if v, ok := raw["allowlist"]; ok {
		if err := json.Unmarshal(v, &out.Allowlist); err != nil {
			return err
		}
	}
	if v, ok := raw["denylist"]; ok {
		if err := json.Unmarshal(v, &out.Denylist); err != nil {
			return err
		}
	}
	if v, ok := raw["require_plan_approval"]; ok && string(v) != "null" {
		var flag bool
		if err := json.Unmarshal(v, &flag); err != nil {
			return err
		}
		out.RequirePlanApproval = &flag
	}
	for k, v := range raw {
		if slices.Contains(toolPolicyKeys, k) {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}

	*p = out
	return nil
}

// BoolPtr returns a pointer to v, for building policies in code.
func BoolPtr(v bool) *bool {
	return &v
}
