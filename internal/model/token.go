package model

// MembershipToken is the local mirror of an issued membership token: its
// id and the address currently holding it.
type MembershipToken struct {
	ID     uint64 `json:"token_id"`
	Holder string `json:"holder"`
}
