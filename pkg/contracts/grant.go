package contracts

import "time"

// Permission is a capability on a record.
type Permission string

const (
	// PermissionRead may be granted to non-owners.
	PermissionRead Permission = "read"
	// PermissionAudit is reserved to the owner and is never granted.
	PermissionAudit Permission = "audit"
)

// AccessGrant lets a non-owner read a record until it expires or is revoked.
// Grants are never deleted; revocation is the only mutation.
type AccessGrant struct {
	ID         string     `json:"id"`
	RecordID   string     `json:"record_id"`
	GranteeID  string     `json:"grantee_id"`
	GrantorID  string     `json:"grantor_id"`
	Permission Permission `json:"permission"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// EffectiveAt reports whether the grant confers access at now.
func (g AccessGrant) EffectiveAt(now time.Time) bool {
	if g.Revoked {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}
