package domain

// ReturnsPolicy is the per-tenant returns window.
type ReturnsPolicy struct {
	Days int `json:"days"`
}

// PolicySettings groups the tenant's configurable policy values.
type PolicySettings struct {
	Returns ReturnsPolicy `json:"returns"`
}

// TenantConfig is the static per-tenant configuration row, read-only from the
// core's perspective. OrdersTableName is the handle for the tenant's private
// data set.
type TenantConfig struct {
	TenantID        string         `json:"tenantId"`
	OrdersTableName string         `json:"ordersTableName"`
	Policies        PolicySettings `json:"policies"`
}

// Order is one row of a tenant's private order data.
type Order struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	Item    string `json:"item"`
	Status  string `json:"status"`
}
