package models

import (
	"time"

	"github.com/uptrace/bun"
)

// OTPCredential is the TOTP second factor for a user or admin. ActorRef is
// "user:<sub>" or "admin:<id>"; at most one credential per actor. LastStep is
// monotonically non-decreasing while verified (replay guard).
type OTPCredential struct {
	bun.BaseModel `bun:"table:otp_credentials,alias:otp"`

	ActorRef     string     `bun:"actor_ref,pk"`
	SecretEnc    []byte     `bun:"secret_enc,notnull,type:bytea"` // KEK-wrapped base32 secret
	Algorithm    string     `bun:"algorithm,notnull,default:'SHA1'"`
	Enabled      bool       `bun:"enabled,notnull,default:false"`
	Verified     bool       `bun:"verified,notnull,default:false"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt   *time.Time `bun:"last_used_at"`
	FailureCount int        `bun:"failure_count,notnull,default:0"`
	LockedUntil  *time.Time `bun:"locked_until"`
	LastStep     int64      `bun:"last_step,notnull,default:0"`
}

// OTPActorRef builds the actor reference for a given kind and id.
func OTPActorRef(kind, ref string) string {
	return kind + ":" + ref
}

// Email verification purposes.
const (
	EmailPurposeSignupVerify      = "signup_verify"
	EmailPurposeEmailChangeVerify = "email_change_verify"
	EmailPurposePasswordRecovery  = "password_recovery"
)

// EmailVerificationToken is a single-use token mailed to the user. Creating a
// new active token invalidates any active token for the same (user, purpose).
type EmailVerificationToken struct {
	bun.BaseModel `bun:"table:email_verification_tokens,alias:evt"`

	TokenHash   string     `bun:"token_hash,pk"` // SHA-256 of the mailed token
	UserSub     string     `bun:"user_sub,notnull"` // FK to users(sub) ON DELETE CASCADE
	Purpose     string     `bun:"purpose,notnull"`
	TargetEmail string     `bun:"target_email,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull"`
	ConsumedAt  *time.Time `bun:"consumed_at"`
}

// Setting is a schema-validated configuration value, read-through cached.
type Setting struct {
	bun.BaseModel `bun:"table:settings,alias:set"`

	Key       string    `bun:"key,pk"`
	Value     JSONMap   `bun:"value,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// AuditLog is an append-only record of a mutating or security-sensitive
// operation. Emission never fails the originating request.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID           int64     `bun:"id,pk,autoincrement"`
	EventType    string    `bun:"event_type,notnull"`
	ActorKind    string    `bun:"actor_kind"`
	ActorID      string    `bun:"actor_id"`
	ResourceType string    `bun:"resource_type"`
	ResourceID   string    `bun:"resource_id"`
	Method       string    `bun:"method"`
	Path         string    `bun:"path"`
	StatusCode   int       `bun:"status_code"`
	IPAddress    string    `bun:"ip_address"`
	UserAgent    string    `bun:"user_agent"`
	Success      bool      `bun:"success,notnull"`
	ErrorMessage *string   `bun:"error_message"`
	Details      JSONMap   `bun:"details,type:jsonb"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
