package policy

import (
	"fmt"

	"github.com/dop251/goja"
)

// Rule is a compiled operator escalation expression. The script sees a
// read-only `scan` object and evaluates to "", "REVIEW" or "REJECTED"; it
// can only tighten a decision, never release one. Example:
//
//	scan.suspicions > 2 ? "REVIEW" : ""
type Rule struct {
	src  string
	prog *goja.Program
}

// RuleInput is the summary exposed to the script.
type RuleInput struct {
	Decision   string   `json:"decision"`
	Hits       int      `json:"hits"`
	Suspicions int      `json:"suspicions"`
	CharCount  int      `json:"charCount"`
	Reasons    []string `json:"reasons"`
}

// CompileRule compiles the expression once; Apply may run it per document.
func CompileRule(src string) (*Rule, error) {
	prog, err := goja.Compile("policy_rule", src, true)
	if err != nil {
		return nil, fmt.Errorf("compile policy rule: %w", err)
	}
	return &Rule{src: src, prog: prog}, nil
}

// Apply evaluates the rule against the outcome. A malformed or upgrading
// verdict is an error; the caller keeps the engine's outcome in that case.
func (r *Rule) Apply(out Outcome, in RuleInput) (Outcome, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := vm.Set("scan", in); err != nil {
		return out, fmt.Errorf("bind rule input: %w", err)
	}
	val, err := vm.RunProgram(r.prog)
	if err != nil {
		return out, fmt.Errorf("run policy rule: %w", err)
	}
	verdict := val.String()
	if verdict == "" || verdict == "undefined" || verdict == "null" {
		return out, nil
	}
	switch Decision(verdict) {
	case Review:
		if out.Decision == Confirmed {
			out.Decision = Review
			out.NeedsRedaction = false
			out.Reasons = append(out.Reasons, NewReason(CodePolicyRule))
		}
	case Rejected:
		if out.Decision != Rejected {
			out.Decision = Rejected
			out.NeedsRedaction = false
			out.Reasons = append(out.Reasons, NewReason(CodePolicyRule))
		}
	default:
		return out, fmt.Errorf("policy rule returned %q; want REVIEW, REJECTED or empty", verdict)
	}
	return out, nil
}
