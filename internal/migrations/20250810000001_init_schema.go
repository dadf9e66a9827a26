package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	casbinbunadapter "github.com/darkauth/darkauth/internal/authz/bunadapter"
	"github.com/darkauth/darkauth/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20250810000001, down_20250810000001)
}

// up_20250810000001 initializes the full database schema
func up_20250810000001(ctx context.Context, db *bun.DB) error {
	// 1. Principals
	fmt.Print(" [up] creating principal tables...")
	_, err := db.NewCreateTable().Model((*models.User)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create users: %w", err)
	}
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`)

	q := db.NewCreateTable().Model((*models.PakeRecord)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create pake_records: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE pake_records ADD CONSTRAINT fk_pake_records_sub FOREIGN KEY (sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}

	q = db.NewCreateTable().Model((*models.PakeHistory)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create pake_history: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_pake_history_sub ON pake_history(sub)`)
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE pake_history ADD CONSTRAINT fk_pake_history_sub FOREIGN KEY (sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}

	q = db.NewCreateTable().Model((*models.WrappedDRK)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create wrapped_drks: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE wrapped_drks ADD CONSTRAINT fk_wrapped_drks_sub FOREIGN KEY (sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}

	_, err = db.NewCreateTable().Model((*models.Admin)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create admins: %w", err)
	}
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_admins_email ON admins(email)`)

	q = db.NewCreateTable().Model((*models.AdminPakeRecord)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(admin_id) REFERENCES admins(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create admin_pake_records: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE admin_pake_records ADD CONSTRAINT fk_admin_pake_records_admin_id FOREIGN KEY (admin_id) REFERENCES admins(id) ON DELETE CASCADE`)
	}
	fmt.Println(" OK")

	// 2. OAuth surface
	fmt.Print(" [up] creating oauth tables...")
	_, err = db.NewCreateTable().Model((*models.Client)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create clients: %w", err)
	}

	_, err = db.NewCreateTable().Model((*models.PendingAuth)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create pending_auths: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_pending_auths_expires_at ON pending_auths(expires_at)`)

	_, err = db.NewCreateTable().Model((*models.AuthCode)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create auth_codes: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_auth_codes_expires_at ON auth_codes(expires_at)`)

	_, err = db.NewCreateTable().Model((*models.JWKSKey)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create jwks_keys: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_jwks_keys_active ON jwks_keys(active)`)
	fmt.Println(" OK")

	// 3. Sessions
	fmt.Print(" [up] creating session tables...")
	q = db.NewCreateTable().Model((*models.Session)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
		q = q.ForeignKey(`(admin_id) REFERENCES admins(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create sessions: %w", err)
	}
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(token_hash)`)
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user_sub ON sessions(user_sub)`)
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if IsPostgreSQL(db) {
		checkActor := `ALTER TABLE sessions ADD CONSTRAINT chk_sessions_actor CHECK ((user_sub IS NOT NULL)::int + (admin_id IS NOT NULL)::int = 1)`
		if _, err := db.Exec(checkActor); err != nil {
			return fmt.Errorf("sessions constraint: %w", err)
		}
		db.Exec(`ALTER TABLE sessions ADD CONSTRAINT fk_sessions_user_sub FOREIGN KEY (user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE sessions ADD CONSTRAINT fk_sessions_admin_id FOREIGN KEY (admin_id) REFERENCES admins(id) ON DELETE CASCADE`)
	}

	q = db.NewCreateTable().Model((*models.RefreshToken)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(session_id) REFERENCES sessions(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create refresh_tokens: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_session_id ON refresh_tokens(session_id)`)
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at)`)
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE refresh_tokens ADD CONSTRAINT fk_refresh_tokens_session_id FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE`)
	}
	fmt.Println(" OK")

	// 4. RBAC
	fmt.Print(" [up] creating rbac tables...")
	_, err = db.NewCreateTable().Model((*models.Permission)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create permissions: %w", err)
	}

	q = db.NewCreateTable().Model((*models.UserPermission)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
		q = q.ForeignKey(`(permission_key) REFERENCES permissions(key) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create user_permissions: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE user_permissions ADD CONSTRAINT fk_user_permissions_user_sub FOREIGN KEY (user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE user_permissions ADD CONSTRAINT fk_user_permissions_permission_key FOREIGN KEY (permission_key) REFERENCES permissions(key) ON DELETE CASCADE`)
	}

	_, err = db.NewCreateTable().Model((*models.Group)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create groups: %w", err)
	}

	q = db.NewCreateTable().Model((*models.GroupPermission)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(group_key) REFERENCES groups(key) ON DELETE CASCADE`)
		q = q.ForeignKey(`(permission_key) REFERENCES permissions(key) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create group_permissions: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE group_permissions ADD CONSTRAINT fk_group_permissions_group_key FOREIGN KEY (group_key) REFERENCES groups(key) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE group_permissions ADD CONSTRAINT fk_group_permissions_permission_key FOREIGN KEY (permission_key) REFERENCES permissions(key) ON DELETE CASCADE`)
	}

	q = db.NewCreateTable().Model((*models.UserGroup)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
		q = q.ForeignKey(`(group_key) REFERENCES groups(key) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create user_groups: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE user_groups ADD CONSTRAINT fk_user_groups_user_sub FOREIGN KEY (user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE user_groups ADD CONSTRAINT fk_user_groups_group_key FOREIGN KEY (group_key) REFERENCES groups(key) ON DELETE CASCADE`)
	}

	_, err = db.NewCreateTable().Model((*models.Organization)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create organizations: %w", err)
	}
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_slug ON organizations(slug)`)

	q = db.NewCreateTable().Model((*models.OrganizationMember)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(organization_id) REFERENCES organizations(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create organization_members: %w", err)
	}
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_organization_members_org_user ON organization_members(organization_id, user_sub)`)
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE organization_members ADD CONSTRAINT fk_organization_members_org FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE organization_members ADD CONSTRAINT fk_organization_members_user_sub FOREIGN KEY (user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}

	_, err = db.NewCreateTable().Model((*models.Role)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create roles: %w", err)
	}
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_key ON roles(key)`)

	q = db.NewCreateTable().Model((*models.RolePermission)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(role_id) REFERENCES roles(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(permission_key) REFERENCES permissions(key) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create role_permissions: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE role_permissions ADD CONSTRAINT fk_role_permissions_role_id FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE role_permissions ADD CONSTRAINT fk_role_permissions_permission_key FOREIGN KEY (permission_key) REFERENCES permissions(key) ON DELETE CASCADE`)
	}

	q = db.NewCreateTable().Model((*models.OrganizationMemberRole)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(member_id) REFERENCES organization_members(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(role_id) REFERENCES roles(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create organization_member_roles: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE organization_member_roles ADD CONSTRAINT fk_omr_member_id FOREIGN KEY (member_id) REFERENCES organization_members(id) ON DELETE CASCADE`)
		db.Exec(`ALTER TABLE organization_member_roles ADD CONSTRAINT fk_omr_role_id FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE`)
	}
	fmt.Println(" OK")

	// 5. Second factor, settings, audit
	fmt.Print(" [up] creating otp and support tables...")
	_, err = db.NewCreateTable().Model((*models.OTPCredential)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create otp_credentials: %w", err)
	}

	q = db.NewCreateTable().Model((*models.EmailVerificationToken)(nil)).IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create email_verification_tokens: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_email_tokens_user_purpose ON email_verification_tokens(user_sub, purpose)`)
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE email_verification_tokens ADD CONSTRAINT fk_email_tokens_user_sub FOREIGN KEY (user_sub) REFERENCES users(sub) ON DELETE CASCADE`)
	}

	_, err = db.NewCreateTable().Model((*models.Setting)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	if IsPostgreSQL(db) {
		db.Exec(`ALTER TABLE settings ALTER COLUMN value TYPE JSONB USING value::jsonb`)
	}

	_, err = db.NewCreateTable().Model((*models.AuditLog)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create audit_logs: %w", err)
	}
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`)
	db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type)`)

	_, err = db.NewCreateTable().Model((*casbinbunadapter.CasbinRule)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create casbin_rules: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20250810000001 drops all tables
func down_20250810000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping all tables...")

	tables := []string{
		"casbin_rules",
		"audit_logs",
		"settings",
		"email_verification_tokens",
		"otp_credentials",
		"organization_member_roles",
		"role_permissions",
		"roles",
		"organization_members",
		"organizations",
		"user_groups",
		"group_permissions",
		"groups",
		"user_permissions",
		"permissions",
		"refresh_tokens",
		"sessions",
		"jwks_keys",
		"auth_codes",
		"pending_auths",
		"clients",
		"admin_pake_records",
		"admins",
		"wrapped_drks",
		"pake_history",
		"pake_records",
		"users",
	}

	for _, table := range tables {
		if IsPostgreSQL(db) {
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		} else {
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		}
	}

	fmt.Println(" OK")
	return nil
}
