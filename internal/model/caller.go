package model

import "strings"

// Roles carried in the access token's role claim.
const (
	RoleHolder   = "HOLDER"
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
)

// Caller is the verified identity behind a request.  Address is compared
// case-insensitively with token owners and merchant entries.
type Caller struct {
	Address string
	Role    string
}

// Is reports whether the caller's address equals addr.
func (c Caller) Is(addr string) bool {
	return c.Address != "" && strings.EqualFold(c.Address, addr)
}

// NormalizeAddress lower-cases and trims an address for storage.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
