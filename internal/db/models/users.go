package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User represents a human principal. Sub is the opaque, stable OIDC subject;
// it never changes once assigned. Passwords never reach the server: the PAKE
// record referenced by Sub carries the OPAQUE envelope instead of a hash.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Sub                   string     `bun:"sub,pk"`
	Email                 string     `bun:"email,notnull,unique"`
	Name                  string     `bun:"name"`
	EmailVerifiedAt       *time.Time `bun:"email_verified_at"`
	PasswordResetRequired bool       `bun:"password_reset_required,notnull,default:false"`
	CreatedAt             time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt           *time.Time `bun:"last_login_at"`
}

// PakeRecord stores the server-side OPAQUE material for a user. Exactly one
// record per user; replaced atomically on password change with the previous
// export-key hash appended to PakeHistory.
type PakeRecord struct {
	bun.BaseModel `bun:"table:pake_records,alias:pr"`

	Sub             string    `bun:"sub,pk"` // FK to users(sub)
	Envelope        []byte    `bun:"envelope,notnull,type:bytea"`
	ServerPubkey    []byte    `bun:"server_pubkey,notnull,type:bytea"`
	ExportKeyHash   *string   `bun:"export_key_hash"` // client-submitted H(exportKey), reuse guard
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	RotatedAt       *time.Time `bun:"rotated_at"`
}

// PakeHistory keeps hashes of previous export keys so a password change
// cannot reuse an old password.
type PakeHistory struct {
	bun.BaseModel `bun:"table:pake_history,alias:ph"`

	ID            int64     `bun:"id,pk,autoincrement"`
	Sub           string    `bun:"sub,notnull"` // FK to users(sub) ON DELETE CASCADE
	ExportKeyHash string    `bun:"export_key_hash,notnull"`
	ReplacedAt    time.Time `bun:"replaced_at,notnull,default:current_timestamp"`
}

// Admin represents an operator of the admin realm.
type Admin struct {
	bun.BaseModel `bun:"table:admins,alias:a"`

	ID                    string    `bun:"id,pk,type:uuid"`
	Email                 string    `bun:"email,notnull,unique"`
	Name                  string    `bun:"name"`
	Role                  string    `bun:"role,notnull"` // read | write
	PasswordResetRequired bool      `bun:"password_reset_required,notnull,default:false"`
	CreatedAt             time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// AdminPakeRecord stores the OPAQUE material for an admin, keyed by admin id.
type AdminPakeRecord struct {
	bun.BaseModel `bun:"table:admin_pake_records,alias:apr"`

	AdminID      string    `bun:"admin_id,pk,type:uuid"` // FK to admins(id)
	Envelope     []byte    `bun:"envelope,notnull,type:bytea"`
	ServerPubkey []byte    `bun:"server_pubkey,notnull,type:bytea"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Admin role values.
const (
	AdminRoleRead  = "read"
	AdminRoleWrite = "write"
)

// WrappedDRK is the per-user singleton blob uploaded by the user's browser.
// The server never sees the plaintext DRK.
type WrappedDRK struct {
	bun.BaseModel `bun:"table:wrapped_drks,alias:wd"`

	Sub       string    `bun:"sub,pk"` // FK to users(sub) ON DELETE CASCADE
	Blob      []byte    `bun:"blob,notnull,type:bytea"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
