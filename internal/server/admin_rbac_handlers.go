package server

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/services/accounts"
)

// ----- admin accounts -----

type adminView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func toAdminView(a *models.Admin) adminView {
	return adminView{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}

// HandleAdminListAdmins handles GET /admin/admins.
func (s *Server) HandleAdminListAdmins(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	admins, total, err := s.admins.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]adminView, len(admins))
	for i := range admins {
		views[i] = toAdminView(&admins[i])
	}
	writeJSON(w, http.StatusOK, paginated(views, page, limit, total))
}

type createAdminBody struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// HandleAdminCreateAdmin handles POST /admin/admins. The new admin has no
// PAKE record yet; they set a password through the registration endpoints.
func (s *Server) HandleAdminCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var body createAdminBody
	if err := decodeJSON(r, &body); err != nil || body.Email == "" {
		badRequest(w, "email is required")
		return
	}
	address := accounts.NormalizeEmail(body.Email)
	if !accounts.ValidEmail(address) {
		badRequest(w, "invalid email address")
		return
	}
	if body.Role != models.AdminRoleRead && body.Role != models.AdminRoleWrite {
		badRequest(w, "role must be read or write")
		return
	}
	admin := &models.Admin{
		ID:                    uuid.Must(uuid.NewV7()).String(),
		Email:                 address,
		Name:                  body.Name,
		Role:                  body.Role,
		PasswordResetRequired: true,
		CreatedAt:             timeNow(),
	}
	if err := s.admins.Create(r.Context(), admin); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "admin", admin.ID, true)
	writeJSON(w, http.StatusCreated, toAdminView(admin))
}

type updateAdminBody struct {
	Name *string `json:"name,omitempty"`
	Role *string `json:"role,omitempty"`
}

// HandleAdminUpdateAdmin handles PUT /admin/admins/{adminID}. An admin cannot
// demote themselves, which keeps at least one write admin reachable.
func (s *Server) HandleAdminUpdateAdmin(w http.ResponseWriter, r *http.Request) {
	target, err := s.admins.GetByID(r.Context(), chi.URLParam(r, "adminID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body updateAdminBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Role != nil {
		if *body.Role != models.AdminRoleRead && *body.Role != models.AdminRoleWrite {
			badRequest(w, "role must be read or write")
			return
		}
		if actor, ok := AdminFromContext(r.Context()); ok && actor.ID == target.ID && *body.Role != actor.Role {
			writeJSON(w, http.StatusConflict, errorBody{Error: "cannot change own role"})
			return
		}
		target.Role = *body.Role
	}
	if body.Name != nil {
		target.Name = *body.Name
	}
	if err := s.admins.Update(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "admin", target.ID, true)
	writeJSON(w, http.StatusOK, toAdminView(target))
}

// HandleAdminDeleteAdmin handles DELETE /admin/admins/{adminID}. Self-delete
// is refused.
func (s *Server) HandleAdminDeleteAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "adminID")
	if actor, ok := AdminFromContext(r.Context()); ok && actor.ID == id {
		writeJSON(w, http.StatusConflict, errorBody{Error: "cannot delete own account"})
		return
	}
	if err := s.admins.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "admin", id, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ----- permissions -----

type permissionBody struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// HandleAdminListPermissions handles GET /admin/permissions.
func (s *Server) HandleAdminListPermissions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	perms, total, err := s.rbac.ListPermissions(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(perms, page, limit, total))
}

// permissionKeyPattern bounds the namespace keys live in. Keys end up in
// tokens and policy rules, so the charset stays tight.
var permissionKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_:.-]+$`)

// HandleAdminCreatePermission handles POST /admin/permissions.
func (s *Server) HandleAdminCreatePermission(w http.ResponseWriter, r *http.Request) {
	var body permissionBody
	if err := decodeJSON(r, &body); err != nil || body.Key == "" {
		badRequest(w, "key is required")
		return
	}
	if !permissionKeyPattern.MatchString(body.Key) {
		badRequest(w, "key may only contain letters, digits, and _ : . -")
		return
	}
	perm := &models.Permission{Key: body.Key, Description: body.Description, CreatedAt: timeNow()}
	if err := s.rbac.CreatePermission(r.Context(), perm); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "permission", perm.Key, true)
	writeJSON(w, http.StatusCreated, perm)
}

// HandleAdminDeletePermission handles DELETE /admin/permissions/{key}.
func (s *Server) HandleAdminDeletePermission(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.rbac.DeletePermission(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "permission", key, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ----- groups -----

type groupBody struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	EnableLogin *bool  `json:"enableLogin,omitempty"`
	RequireOtp  *bool  `json:"requireOtp,omitempty"`
}

// HandleAdminListGroups handles GET /admin/groups.
func (s *Server) HandleAdminListGroups(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	groups, total, err := s.rbac.ListGroups(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(groups, page, limit, total))
}

// HandleAdminCreateGroup handles POST /admin/groups.
func (s *Server) HandleAdminCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body groupBody
	if err := decodeJSON(r, &body); err != nil || body.Key == "" {
		badRequest(w, "key is required")
		return
	}
	group := &models.Group{
		Key:         body.Key,
		Name:        body.Name,
		EnableLogin: body.EnableLogin == nil || *body.EnableLogin,
		CreatedAt:   timeNow(),
	}
	if body.RequireOtp != nil {
		group.RequireOtp = *body.RequireOtp
	}
	if err := s.rbac.CreateGroup(r.Context(), group); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "group", group.Key, true)
	writeJSON(w, http.StatusCreated, group)
}

// HandleAdminUpdateGroup handles PUT /admin/groups/{key}.
func (s *Server) HandleAdminUpdateGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.rbac.GetGroup(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body groupBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Name != "" {
		group.Name = body.Name
	}
	if body.EnableLogin != nil {
		group.EnableLogin = *body.EnableLogin
	}
	if body.RequireOtp != nil {
		group.RequireOtp = *body.RequireOtp
	}
	if err := s.rbac.UpdateGroup(r.Context(), group); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "group", group.Key, true)
	writeJSON(w, http.StatusOK, group)
}

// HandleAdminDeleteGroup handles DELETE /admin/groups/{key}. The default
// group is undeletable.
func (s *Server) HandleAdminDeleteGroup(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == models.DefaultGroupKey {
		writeJSON(w, http.StatusConflict, errorBody{Error: "default group cannot be deleted"})
		return
	}
	if err := s.rbac.DeleteGroup(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "group", key, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// HandleAdminSetGroupPermissions handles PUT /admin/groups/{key}/permissions.
func (s *Server) HandleAdminSetGroupPermissions(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body setPermissionsBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.rbac.SetGroupPermissions(r.Context(), key, body.Permissions); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "group", key, true)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

type groupMemberBody struct {
	UserSub string `json:"userSub"`
}

// HandleAdminAddGroupMember handles POST /admin/groups/{key}/members.
func (s *Server) HandleAdminAddGroupMember(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body groupMemberBody
	if err := decodeJSON(r, &body); err != nil || body.UserSub == "" {
		badRequest(w, "userSub is required")
		return
	}
	if err := s.rbac.AddUserToGroup(r.Context(), body.UserSub, key); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "group", key, true)
	writeJSON(w, http.StatusOK, map[string]any{"added": true})
}

// HandleAdminRemoveGroupMember handles DELETE /admin/groups/{key}/members/{sub}.
func (s *Server) HandleAdminRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sub := chi.URLParam(r, "sub")
	if err := s.rbac.RemoveUserFromGroup(r.Context(), sub, key); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "group", key, true)
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

// ----- roles -----

type roleBody struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// HandleAdminListRoles handles GET /admin/roles.
func (s *Server) HandleAdminListRoles(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	roles, total, err := s.rbac.ListRoles(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(roles, page, limit, total))
}

// HandleAdminCreateRole handles POST /admin/roles. Created roles are never
// system roles.
func (s *Server) HandleAdminCreateRole(w http.ResponseWriter, r *http.Request) {
	var body roleBody
	if err := decodeJSON(r, &body); err != nil || body.Key == "" {
		badRequest(w, "key is required")
		return
	}
	role := &models.Role{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Key:       body.Key,
		Name:      body.Name,
		CreatedAt: timeNow(),
	}
	if err := s.rbac.CreateRole(r.Context(), role); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "role", role.ID, true)
	writeJSON(w, http.StatusCreated, role)
}

// HandleAdminUpdateRole handles PUT /admin/roles/{roleID}. System roles keep
// their key.
func (s *Server) HandleAdminUpdateRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.rbac.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body roleBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Name != "" {
		role.Name = body.Name
	}
	if body.Key != "" && body.Key != role.Key {
		if role.System {
			writeJSON(w, http.StatusConflict, errorBody{Error: "system role key is fixed"})
			return
		}
		role.Key = body.Key
	}
	if err := s.rbac.UpdateRole(r.Context(), role); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "role", role.ID, true)
	writeJSON(w, http.StatusOK, role)
}

// HandleAdminDeleteRole handles DELETE /admin/roles/{roleID}.
func (s *Server) HandleAdminDeleteRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.rbac.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if role.System {
		writeJSON(w, http.StatusConflict, errorBody{Error: "system roles cannot be deleted"})
		return
	}
	if err := s.rbac.DeleteRole(r.Context(), role.ID); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "role", role.ID, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// HandleAdminSetRolePermissions handles PUT /admin/roles/{roleID}/permissions.
func (s *Server) HandleAdminSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	var body setPermissionsBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.rbac.SetRolePermissions(r.Context(), roleID, body.Permissions); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "role", roleID, true)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// ----- organizations -----

type orgBody struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	ForceOtp *bool  `json:"forceOtp,omitempty"`
}

// HandleAdminListOrganizations handles GET /admin/organizations.
func (s *Server) HandleAdminListOrganizations(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	orgs, total, err := s.rbac.ListOrganizations(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(orgs, page, limit, total))
}

// HandleAdminGetOrganization handles GET /admin/organizations/{orgID}.
func (s *Server) HandleAdminGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.rbac.GetOrganization(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// HandleAdminCreateOrganization handles POST /admin/organizations.
func (s *Server) HandleAdminCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var body orgBody
	if err := decodeJSON(r, &body); err != nil || body.Slug == "" || body.Name == "" {
		badRequest(w, "slug and name are required")
		return
	}
	org := &models.Organization{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      body.Slug,
		Name:      body.Name,
		CreatedAt: timeNow(),
	}
	if body.ForceOtp != nil {
		org.ForceOtp = *body.ForceOtp
	}
	if err := s.rbac.CreateOrganization(r.Context(), org); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization", org.ID, true)
	writeJSON(w, http.StatusCreated, org)
}

// HandleAdminUpdateOrganization handles PUT /admin/organizations/{orgID}.
// The slug is immutable; attempts to change it are rejected.
func (s *Server) HandleAdminUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.rbac.GetOrganization(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body orgBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Slug != "" && body.Slug != org.Slug {
		writeJSON(w, http.StatusConflict, errorBody{Error: "slug is immutable"})
		return
	}
	if body.Name != "" {
		org.Name = body.Name
	}
	if body.ForceOtp != nil {
		org.ForceOtp = *body.ForceOtp
	}
	if err := s.rbac.UpdateOrganization(r.Context(), org); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization", org.ID, true)
	writeJSON(w, http.StatusOK, org)
}

// HandleAdminDeleteOrganization handles DELETE /admin/organizations/{orgID}.
func (s *Server) HandleAdminDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if err := s.rbac.DeleteOrganization(r.Context(), orgID); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization", orgID, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ----- organization members -----

type addMemberBody struct {
	UserSub string `json:"userSub"`
	Status  string `json:"status,omitempty"`
}

// HandleAdminListMembers handles GET /admin/organizations/{orgID}/members.
func (s *Server) HandleAdminListMembers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	members, total, err := s.rbac.ListMembers(r.Context(), chi.URLParam(r, "orgID"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(members, page, limit, total))
}

// HandleAdminAddMember handles POST /admin/organizations/{orgID}/members.
func (s *Server) HandleAdminAddMember(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	var body addMemberBody
	if err := decodeJSON(r, &body); err != nil || body.UserSub == "" {
		badRequest(w, "userSub is required")
		return
	}
	status := body.Status
	if status == "" {
		status = models.MemberStatusActive
	}
	if status != models.MemberStatusActive && status != models.MemberStatusInvited && status != models.MemberStatusSuspended {
		badRequest(w, "status must be active, invited, or suspended")
		return
	}
	member := &models.OrganizationMember{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OrganizationID: orgID,
		UserSub:        body.UserSub,
		Status:         status,
		CreatedAt:      timeNow(),
	}
	if err := s.rbac.AddMember(r.Context(), member); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization_member", member.ID, true)
	writeJSON(w, http.StatusCreated, member)
}

type memberStatusBody struct {
	Status string `json:"status"`
}

// HandleAdminUpdateMemberStatus handles PUT /admin/organizations/{orgID}/members/{memberID}/status.
func (s *Server) HandleAdminUpdateMemberStatus(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	var body memberStatusBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Status != models.MemberStatusActive && body.Status != models.MemberStatusInvited && body.Status != models.MemberStatusSuspended {
		badRequest(w, "status must be active, invited, or suspended")
		return
	}
	if err := s.rbac.UpdateMemberStatus(r.Context(), memberID, body.Status); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization_member", memberID, true)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// HandleAdminRemoveMember handles DELETE /admin/organizations/{orgID}/members/{memberID}.
func (s *Server) HandleAdminRemoveMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	if err := s.rbac.RemoveMember(r.Context(), memberID); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization_member", memberID, true)
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

type memberRolesBody struct {
	RoleIDs []string `json:"roleIds"`
}

// HandleAdminSetMemberRoles handles PUT /admin/organizations/{orgID}/members/{memberID}/roles.
// Only system roles may be assigned.
func (s *Server) HandleAdminSetMemberRoles(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	var body memberRolesBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	for _, roleID := range body.RoleIDs {
		role, err := s.rbac.GetRole(r.Context(), roleID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !role.System {
			badRequest(w, "only system roles are assignable to members")
			return
		}
	}
	if err := s.rbac.SetMemberRoles(r.Context(), memberID, body.RoleIDs); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "organization_member", memberID, true)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// ----- sessions -----

type sessionView struct {
	ID          string  `json:"id"`
	ActorKind   string  `json:"actorKind"`
	UserSub     *string `json:"userSub,omitempty"`
	AdminID     *string `json:"adminId,omitempty"`
	ClientID    *string `json:"clientId,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	ExpiresAt   string  `json:"expiresAt"`
	LastUsedAt  string  `json:"lastUsedAt"`
	UserAgent   *string `json:"userAgent,omitempty"`
	IPAddress   *string `json:"ipAddress,omitempty"`
	OtpRequired bool    `json:"otpRequired"`
	OtpVerified bool    `json:"otpVerified"`
}

func toSessionView(sess *models.Session) sessionView {
	return sessionView{
		ID:          sess.ID,
		ActorKind:   sess.ActorKind,
		UserSub:     sess.UserSub,
		AdminID:     sess.AdminID,
		ClientID:    sess.ClientID,
		CreatedAt:   sess.CreatedAt.Format(timeLayout),
		ExpiresAt:   sess.ExpiresAt.Format(timeLayout),
		LastUsedAt:  sess.LastUsedAt.Format(timeLayout),
		UserAgent:   sess.UserAgent,
		IPAddress:   sess.IPAddress,
		OtpRequired: sess.OtpRequired,
		OtpVerified: sess.OtpVerified,
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// HandleAdminListSessions handles GET /admin/sessions.
func (s *Server) HandleAdminListSessions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	sessions, total, err := s.sessRepo.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]sessionView, len(sessions))
	for i := range sessions {
		views[i] = toSessionView(&sessions[i])
	}
	writeJSON(w, http.StatusOK, paginated(views, page, limit, total))
}

// HandleAdminRevokeSession handles DELETE /admin/sessions/{sessionID}.
func (s *Server) HandleAdminRevokeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Logout(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "session", id, true)
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
