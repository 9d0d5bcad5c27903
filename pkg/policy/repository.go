// Package policy implements the read-only return-policy repository.
//
// Selection is strictly by priority: the VIP-extended policy (for Gold and
// Platinum customers) pre-empts category-specific policies, which pre-empt
// the general policy. Policies are never merged. A policy may carry an
// optional CEL condition which is compiled at load time and must evaluate
// to true for the policy to be applicable.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// MatchInput carries the request attributes conditions may reference.
type MatchInput struct {
	Tier        contracts.LoyaltyTier
	Categories  []contracts.ProductCategory
	ElapsedDays int
}

// Repository holds the active policy set. It is read-only after Load; Load
// may be called again to swap the whole set atomically.
type Repository struct {
	mu       sync.RWMutex
	env      *cel.Env
	policies []contracts.ReturnPolicy
	programs map[string]cel.Program
}

// NewRepository initializes the CEL environment for policy conditions.
func NewRepository() (*Repository, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("elapsed_days", types.IntType),
			decls.NewVariable("loyalty_tier", types.StringType),
			decls.NewVariable("categories", types.NewListType(types.StringType)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}
	return &Repository{env: env, programs: make(map[string]cel.Program)}, nil
}

// Load replaces the active policy set. Inactive policies are dropped here
// so Match never has to re-check the flag. Conditions are compiled up
// front; a policy that fails to compile rejects the whole load.
func (r *Repository) Load(policies []contracts.ReturnPolicy) error {
	active := make([]contracts.ReturnPolicy, 0, len(policies))
	programs := make(map[string]cel.Program)

	for _, p := range policies {
		if !p.Active {
			continue
		}
		if p.Condition != "" {
			ast, issues := r.env.Compile(p.Condition)
			if issues != nil && issues.Err() != nil {
				return fmt.Errorf("policy %s: condition compile: %w", p.PolicyID, issues.Err())
			}
			prg, err := r.env.Program(ast)
			if err != nil {
				return fmt.Errorf("policy %s: condition program: %w", p.PolicyID, err)
			}
			programs[p.PolicyID] = prg
		}
		active = append(active, p)
	}

	r.mu.Lock()
	r.policies = active
	r.programs = programs
	r.mu.Unlock()
	return nil
}

// Active returns a copy of the loaded policy set.
func (r *Repository) Active() []contracts.ReturnPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.ReturnPolicy, len(r.policies))
	copy(out, r.policies)
	return out
}

// Match selects the applicable policy for the request, or reports that no
// policy resolves. When several category policies match the selected items,
// the one with the largest window wins.
func (r *Repository) Match(in MatchInput) (*contracts.ReturnPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if in.Tier.VIP() {
		if p := r.find(contracts.PolicyVIPExtended, in); p != nil {
			return p, true
		}
	}

	var best *contracts.ReturnPolicy
	for _, cat := range in.Categories {
		if p := r.find(contracts.PolicyCategory(cat), in); p != nil {
			if best == nil || p.WindowDays > best.WindowDays {
				best = p
			}
		}
	}
	if best != nil {
		return best, true
	}

	if p := r.find(contracts.PolicyGeneral, in); p != nil {
		return p, true
	}
	return nil, false
}

func (r *Repository) find(cat contracts.PolicyCategory, in MatchInput) *contracts.ReturnPolicy {
	for i := range r.policies {
		p := &r.policies[i]
		if p.Category != cat {
			continue
		}
		if !r.applicable(p, in) {
			continue
		}
		out := *p
		return &out
	}
	return nil
}

// applicable evaluates the policy's compiled condition, if any. Evaluation
// errors disqualify the policy rather than failing the match: a broken
// condition must never widen eligibility.
func (r *Repository) applicable(p *contracts.ReturnPolicy, in MatchInput) bool {
	prg, ok := r.programs[p.PolicyID]
	if !ok {
		return true
	}
	cats := make([]string, len(in.Categories))
	for i, c := range in.Categories {
		cats[i] = string(c)
	}
	out, _, err := prg.Eval(map[string]any{
		"elapsed_days": in.ElapsedDays,
		"loyalty_tier": string(in.Tier),
		"categories":   cats,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
