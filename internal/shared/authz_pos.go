package shared

// Point-of-sale permissions declared for RBAC.
const (
	// Sell screen permissions
	PermPOSSellView   = "view_pos_sell"
	PermPOSSellAdd    = "add_pos_sell"
	PermPOSSellEdit   = "edit_pos_sell"
	PermPOSSellDelete = "delete_pos_sell"

	// Product permissions
	PermProductView   = "product.view"
	PermProductCreate = "product.create"
	PermProductUpdate = "product.update"
	PermProductDelete = "product.delete"

	// Stock permissions
	PermStockView     = "stock.view"
	PermStockAdjust   = "stock.adjust"
	PermStockTransfer = "stock.transfer"

	// Purchase permissions
	PermPurchaseView   = "purchase.view"
	PermPurchaseCreate = "purchase.create"
	PermPurchaseUpdate = "purchase.update"
	PermPurchaseDelete = "purchase.delete"

	// Pricing permissions
	PermPricingView   = "pricing.view"
	PermPricingUpdate = "pricing.update"

	// Shift permissions
	PermShiftView  = "shift.view"
	PermShiftOpen  = "shift.open"
	PermShiftClose = "shift.close"

	// HR permissions
	PermHRMEmployeeView   = "hrm.employee.view"
	PermHRMEmployeeManage = "hrm.employee.manage"
	PermHRMAttendanceView = "hrm.attendance.view"
)

// POSSellScopes lists all permissions related to the sell screen.
func POSSellScopes() []string {
	return []string{
		PermPOSSellView,
		PermPOSSellAdd,
		PermPOSSellEdit,
		PermPOSSellDelete,
	}
}

// ProductScopes lists all permissions related to the product catalog.
func ProductScopes() []string {
	return []string{
		PermProductView,
		PermProductCreate,
		PermProductUpdate,
		PermProductDelete,
	}
}

// StockScopes lists all permissions related to inventory movements.
func StockScopes() []string {
	return []string{
		PermStockView,
		PermStockAdjust,
		PermStockTransfer,
	}
}

// PurchaseScopes lists all permissions related to purchasing.
func PurchaseScopes() []string {
	return []string{
		PermPurchaseView,
		PermPurchaseCreate,
		PermPurchaseUpdate,
		PermPurchaseDelete,
	}
}

// PricingScopes lists all permissions related to price lists.
func PricingScopes() []string {
	return []string{
		PermPricingView,
		PermPricingUpdate,
	}
}

// ShiftScopes lists all permissions related to cashier shifts.
func ShiftScopes() []string {
	return []string{
		PermShiftView,
		PermShiftOpen,
		PermShiftClose,
	}
}

// HRMScopes lists all permissions related to human resources.
func HRMScopes() []string {
	return []string{
		PermHRMEmployeeView,
		PermHRMEmployeeManage,
		PermHRMAttendanceView,
	}
}
