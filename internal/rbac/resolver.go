package rbac

import "strings"

// Resolver expands raw role permissions into effective sets and answers
// authorization questions. It is immutable after construction.
type Resolver struct {
	bypassRole string
	closure    map[string][]string
	known      map[string]struct{}
	catalog    []Domain
}

// NewResolver compiles the rule table into a closed implication map. Rules
// sharing a pattern are merged; cycles are tolerated.
func NewResolver(catalog []Domain, rules []Rule) *Resolver {
	direct := make(map[string][]string, len(rules))
	for _, rule := range rules {
		pattern := normalize(rule.Pattern)
		if pattern == "" {
			continue
		}
		for _, implied := range rule.Implies {
			if implied = normalize(implied); implied != "" {
				direct[pattern] = append(direct[pattern], implied)
			}
		}
	}

	closure := make(map[string][]string, len(direct))
	for pattern := range direct {
		seen := map[string]struct{}{pattern: {}}
		stack := append([]string(nil), direct[pattern]...)
		var out []string
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
			stack = append(stack, direct[p]...)
		}
		closure[pattern] = out
	}

	known := map[string]struct{}{PermAll: {}}
	for _, d := range catalog {
		for _, p := range d.Permissions {
			known[normalize(p)] = struct{}{}
		}
	}
	for pattern := range closure {
		known[pattern] = struct{}{}
	}

	return &Resolver{bypassRole: RoleAdmin, closure: closure, known: known, catalog: catalog}
}

// NewDefaultResolver builds a Resolver from the built-in catalog and bundles.
func NewDefaultResolver() *Resolver {
	return NewResolver(DefaultCatalog(), DefaultRules())
}

// Expand returns the effective permission set for raw. Stored strings are
// kept verbatim alongside their normalized form, so the result always
// contains every member of raw, and Expand is idempotent.
func (r *Resolver) Expand(raw []string) Set {
	set := make(Set, len(raw))
	for _, p := range raw {
		set[p] = struct{}{}
		n := normalize(p)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
		for _, implied := range r.closure[n] {
			set[implied] = struct{}{}
		}
	}
	return set
}

// Authorize reports whether a caller holding role and effective may use an
// operation guarded by required. Required names are alternatives: any one of
// them suffices. Outside the bypass role an empty required list denies.
func (r *Resolver) Authorize(role string, effective Set, required []string) bool {
	if role == r.bypassRole {
		return true
	}
	if effective.Has(PermAll) {
		return len(required) > 0
	}
	for _, p := range required {
		if effective.Has(p) || effective.Has(normalize(p)) {
			return true
		}
	}
	return false
}

// Known reports whether p is a catalog permission, a rule pattern or PermAll.
// Role editors use it to refuse typos that would silently grant nothing.
func (r *Resolver) Known(p string) bool {
	_, ok := r.known[normalize(p)]
	return ok
}

// Catalog returns the known permission domains.
func (r *Resolver) Catalog() []Domain {
	out := make([]Domain, len(r.catalog))
	copy(out, r.catalog)
	return out
}

func normalize(p string) string {
	return strings.TrimSpace(strings.ToLower(p))
}
