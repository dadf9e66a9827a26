package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Actor kinds for sessions.
const (
	ActorKindUser  = "user"
	ActorKindAdmin = "admin"
)

// Session tracks a browser session for a user or an admin, never both.
// The cookie carries the opaque session id; the database stores only its hash.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID          string    `bun:"id,pk,type:uuid"`
	TokenHash   string    `bun:"token_hash,notnull,unique"` // SHA-256 of the cookie value
	ActorKind   string    `bun:"actor_kind,notnull"`        // user | admin
	UserSub     *string   `bun:"user_sub"`                  // FK to users(sub), nullable
	AdminID     *string   `bun:"admin_id,type:uuid"`        // FK to admins(id), nullable
	ClientID    *string   `bun:"client_id"`                 // OIDC client that minted the session, if any
	CsrfSecret  string    `bun:"csrf_secret,notnull"`
	OtpRequired bool      `bun:"otp_required,notnull,default:false"`
	OtpVerified bool      `bun:"otp_verified,notnull,default:false"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	LastUsedAt  time.Time `bun:"last_used_at,notnull,default:current_timestamp"`
	UserAgent   *string   `bun:"user_agent"`
	IPAddress   *string   `bun:"ip_address"`
}

// ActorRef returns the identifier of whichever actor owns the session.
func (s *Session) ActorRef() string {
	if s.ActorKind == ActorKindAdmin && s.AdminID != nil {
		return *s.AdminID
	}
	if s.UserSub != nil {
		return *s.UserSub
	}
	return ""
}

// RefreshToken is a rotating opaque secret owned by a session. Redemption is
// at-most-once: ConsumedAt flips via compare-and-set and the successor row
// records RotatedFromHash.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	TokenHash       string     `bun:"token_hash,pk"` // SHA-256 of the opaque secret
	SessionID       string     `bun:"session_id,notnull,type:uuid"` // FK to sessions(id) ON DELETE CASCADE
	RotatedFromHash *string    `bun:"rotated_from_hash"`
	ConsumedAt      *time.Time `bun:"consumed_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt       time.Time  `bun:"expires_at,notnull"`
}
