package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionSignup        = "SIGNUP"
	AuditActionSignin        = "SIGNIN"
	AuditActionSigninFailed  = "SIGNIN_FAILED"
	AuditActionRefresh       = "REFRESH"
	AuditActionRefreshReuse  = "REFRESH_REUSE"
	AuditActionLogout        = "LOGOUT"
	AuditActionLogoutAll     = "LOGOUT_ALL"
	AuditActionAccountDelete = "ACCOUNT_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Metadata  []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
