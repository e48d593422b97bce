package rbac

import "github.com/nusapos/nusapos/internal/shared"

// Domain groups the granular permissions addressed by a "<name>.*" wildcard.
type Domain struct {
	Name        string
	Permissions []string
}

// Rule states that holding Pattern implies every permission in Implies.
// Implied entries may themselves be patterns; they are expanded transitively.
type Rule struct {
	Pattern string
	Implies []string
}

// Alias bundles granted by coarse labels in the role editor.
const (
	BundleInventoryManagement = "inventory_management"
	BundleSellManagement      = "sell_management"
	BundlePurchaseManagement  = "purchase_management"
	BundleShiftManagement     = "shift_management"
	BundleHRMManagement       = "hrm_management"
	BundleUserManagement      = "user_management"
)

// DefaultCatalog lists every known permission grouped by domain.
func DefaultCatalog() []Domain {
	return []Domain{
		{Name: "pos_sell", Permissions: shared.POSSellScopes()},
		{Name: "product", Permissions: shared.ProductScopes()},
		{Name: "stock", Permissions: shared.StockScopes()},
		{Name: "purchase", Permissions: shared.PurchaseScopes()},
		{Name: "pricing", Permissions: shared.PricingScopes()},
		{Name: "shift", Permissions: shared.ShiftScopes()},
		{Name: "hrm", Permissions: shared.HRMScopes()},
		{Name: "users", Permissions: []string{shared.PermUsersView, shared.PermUsersEdit}},
		{Name: "roles", Permissions: []string{shared.PermRolesView, shared.PermRolesEdit}},
		{Name: "branches", Permissions: []string{shared.PermBranchesView, shared.PermBranchesEdit}},
	}
}

// DefaultBundles returns the alias bundles. A bundle also carries the read
// permissions needed to populate the forms of the feature it unlocks.
func DefaultBundles() []Rule {
	return []Rule{
		{Pattern: BundleInventoryManagement, Implies: []string{
			shared.PermStockView, shared.PermStockAdjust, shared.PermStockTransfer,
			shared.PermProductView, shared.PermBranchesView,
		}},
		{Pattern: BundleSellManagement, Implies: []string{
			"pos_sell.*", shared.PermProductView, shared.PermPricingView, shared.PermShiftView,
		}},
		{Pattern: BundlePurchaseManagement, Implies: []string{
			"purchase.*", shared.PermProductView, shared.PermStockView, shared.PermBranchesView,
		}},
		{Pattern: BundleShiftManagement, Implies: []string{"shift.*", shared.PermPOSSellView}},
		{Pattern: BundleHRMManagement, Implies: []string{"hrm.*", shared.PermUsersView}},
		{Pattern: BundleUserManagement, Implies: []string{"users.*", shared.PermRolesView, shared.PermBranchesView}},
	}
}

// WildcardRules derives one "<domain>.*" rule per catalog domain.
func WildcardRules(catalog []Domain) []Rule {
	rules := make([]Rule, 0, len(catalog))
	for _, d := range catalog {
		implied := make([]string, len(d.Permissions))
		copy(implied, d.Permissions)
		rules = append(rules, Rule{Pattern: d.Name + ".*", Implies: implied})
	}
	return rules
}

// DefaultRules is the full rule table used by NewResolver callers.
func DefaultRules() []Rule {
	return append(WildcardRules(DefaultCatalog()), DefaultBundles()...)
}
