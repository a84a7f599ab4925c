package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/scopegrant/internal/grants"
	apperrors "github.com/charlesng35/scopegrant/pkg/errors"
	"github.com/charlesng35/scopegrant/pkg/metrics"
	"github.com/charlesng35/scopegrant/pkg/response"
)

// GrantHandler exposes the grant engine over HTTP.
type GrantHandler struct {
	checker *grants.Checker
	mutator *grants.Mutator
	query   *grants.Query
}

// NewGrantHandler constructs the handler from the engine components.
func NewGrantHandler(checker *grants.Checker, mutator *grants.Mutator, query *grants.Query) (*GrantHandler, error) {
	if checker == nil || mutator == nil || query == nil {
		return nil, errors.New("grant handler: checker, mutator and query are required")
	}
	return &GrantHandler{checker: checker, mutator: mutator, query: query}, nil
}

// RegisterRoutes attaches the grant API under the supplied router group.
func (h *GrantHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/grants/check", h.Check)
	api.POST("/grants", h.Grant)
	api.DELETE("/grants", h.Revoke)
	api.PUT("/grants/sync", h.SyncPermissions)

	api.POST("/grants/roles/check", h.CheckRole)
	api.POST("/grants/roles", h.AssignRole)
	api.DELETE("/grants/roles", h.RemoveRole)
	api.PUT("/grants/roles/sync", h.SyncRoles)

	api.GET("/principals/:ptype/:pid/resources/:rtype/:rid/permissions", h.ListPermissions)
	api.GET("/principals/:ptype/:pid/resources/:rtype/:rid/roles", h.ListRoles)
	api.GET("/resources/:rtype/:rid/principals", h.ListAssignedPrincipals)
	api.GET("/resources/:rtype/:rid/principals/:ptype/:pid", h.IsAssigned)
}

type refPayload struct {
	Type string `json:"type" binding:"required"`
	ID   string `json:"id" binding:"required"`
}

type checkRequest struct {
	Principal   refPayload `json:"principal" binding:"required"`
	Resource    refPayload `json:"resource" binding:"required"`
	Permission  string     `json:"permission,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	Mode        string     `json:"mode,omitempty" binding:"omitempty,oneof=any all"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// Check evaluates a single, any-of or all-of permission question.
func (h *GrantHandler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid check payload"))
		return
	}

	principal := grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID}
	resource := grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID}
	ctx := c.Request.Context()

	var (
		allowed bool
		err     error
		kind    string
	)
	switch {
	case req.Permission != "":
		kind = "single"
		allowed, err = h.checker.HasPermission(ctx, principal, resource, req.Permission)
	case req.Mode == "all":
		kind = "all"
		allowed, err = h.checker.HasAllPermissions(ctx, principal, resource, req.Permissions)
	case len(req.Permissions) > 0 || req.Mode == "any":
		kind = "any"
		allowed, err = h.checker.HasAnyPermission(ctx, principal, resource, req.Permissions)
	default:
		response.Error(c, apperrors.NewBadRequest("permission or permissions is required"))
		return
	}
	if err != nil {
		metrics.GrantChecks.WithLabelValues(kind, "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantChecks.WithLabelValues(kind, checkResult(allowed)).Inc()
	response.Success(c, http.StatusOK, checkResponse{Allowed: allowed})
}

type roleCheckRequest struct {
	Principal refPayload `json:"principal" binding:"required"`
	Resource  refPayload `json:"resource" binding:"required"`
	Role      string     `json:"role" binding:"required"`
}

// CheckRole evaluates a direct role-holding question.
func (h *GrantHandler) CheckRole(c *gin.Context) {
	var req roleCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid role check payload"))
		return
	}

	allowed, err := h.checker.HasRole(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Role)
	if err != nil {
		metrics.GrantChecks.WithLabelValues("role", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantChecks.WithLabelValues("role", checkResult(allowed)).Inc()
	response.Success(c, http.StatusOK, checkResponse{Allowed: allowed})
}

type grantRequest struct {
	Principal  refPayload     `json:"principal" binding:"required"`
	Resource   refPayload     `json:"resource" binding:"required"`
	Permission string         `json:"permission" binding:"required"`
	GrantedBy  string         `json:"granted_by,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Grant creates a direct permission grant.
func (h *GrantHandler) Grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid grant payload"))
		return
	}

	err := h.mutator.GrantPermission(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Permission,
		grantOptions(req.GrantedBy, req.ExpiresAt, req.Metadata)...)
	if err != nil {
		metrics.GrantMutations.WithLabelValues("grant", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantMutations.WithLabelValues("grant", "success").Inc()
	response.Success(c, http.StatusNoContent, nil)
}

type revokeRequest struct {
	Principal  refPayload `json:"principal" binding:"required"`
	Resource   refPayload `json:"resource" binding:"required"`
	Permission string     `json:"permission" binding:"required"`
}

// Revoke removes a direct permission grant. Idempotent.
func (h *GrantHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid revoke payload"))
		return
	}

	err := h.mutator.RevokePermission(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Permission)
	if err != nil {
		metrics.GrantMutations.WithLabelValues("revoke", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantMutations.WithLabelValues("revoke", "success").Inc()
	response.Success(c, http.StatusNoContent, nil)
}

type syncRequest struct {
	Principal   refPayload     `json:"principal" binding:"required"`
	Resource    refPayload     `json:"resource" binding:"required"`
	Permissions []string       `json:"permissions"`
	GrantedBy   string         `json:"granted_by,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SyncPermissions reconciles direct permission grants to the supplied set.
func (h *GrantHandler) SyncPermissions(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid sync payload"))
		return
	}

	err := h.mutator.SyncPermissions(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Permissions,
		grantOptions(req.GrantedBy, req.ExpiresAt, req.Metadata)...)
	if err != nil {
		metrics.GrantMutations.WithLabelValues("sync", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantMutations.WithLabelValues("sync", "success").Inc()
	response.Success(c, http.StatusNoContent, nil)
}

type roleGrantRequest struct {
	Principal refPayload     `json:"principal" binding:"required"`
	Resource  refPayload     `json:"resource" binding:"required"`
	Role      string         `json:"role" binding:"required"`
	GrantedBy string         `json:"granted_by,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AssignRole grants a role for a resource.
func (h *GrantHandler) AssignRole(c *gin.Context) {
	var req roleGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid role grant payload"))
		return
	}

	err := h.mutator.AssignRole(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Role,
		grantOptions(req.GrantedBy, req.ExpiresAt, req.Metadata)...)
	if err != nil {
		metrics.GrantMutations.WithLabelValues("assign_role", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantMutations.WithLabelValues("assign_role", "success").Inc()
	response.Success(c, http.StatusNoContent, nil)
}

type roleRemoveRequest struct {
	Principal refPayload `json:"principal" binding:"required"`
	Resource  refPayload `json:"resource" binding:"required"`
	Role      string     `json:"role" binding:"required"`
}

// RemoveRole removes a role grant. Idempotent.
func (h *GrantHandler) RemoveRole(c *gin.Context) {
	var req roleRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid role remove payload"))
		return
	}

	err := h.mutator.RemoveRole(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Role)
	if err != nil {
		metrics.GrantMutations.WithLabelValues("remove_role", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantMutations.WithLabelValues("remove_role", "success").Inc()
	response.Success(c, http.StatusNoContent, nil)
}

type roleSyncRequest struct {
	Principal refPayload     `json:"principal" binding:"required"`
	Resource  refPayload     `json:"resource" binding:"required"`
	Roles     []string       `json:"roles"`
	GrantedBy string         `json:"granted_by,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SyncRoles reconciles role grants to the supplied set.
func (h *GrantHandler) SyncRoles(c *gin.Context) {
	var req roleSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid role sync payload"))
		return
	}

	err := h.mutator.SyncRoles(c.Request.Context(),
		grants.PrincipalRef{Type: req.Principal.Type, ID: req.Principal.ID},
		grants.ResourceRef{Type: req.Resource.Type, ID: req.Resource.ID},
		req.Roles,
		grantOptions(req.GrantedBy, req.ExpiresAt, req.Metadata)...)
	if err != nil {
		metrics.GrantMutations.WithLabelValues("sync_roles", "error").Inc()
		response.Error(c, storeError(err))
		return
	}

	metrics.GrantMutations.WithLabelValues("sync_roles", "success").Inc()
	response.Success(c, http.StatusNoContent, nil)
}

// ListPermissions returns the direct permission grants for a pair.
func (h *GrantHandler) ListPermissions(c *gin.Context) {
	principal, resource, ok := pairFromPath(c)
	if !ok {
		return
	}

	refs, err := h.query.PermissionsForResource(c.Request.Context(), principal, resource)
	if err != nil {
		response.Error(c, storeError(err))
		return
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	response.Success(c, http.StatusOK, gin.H{"permissions": names})
}

// ListRoles returns the role grants for a pair.
func (h *GrantHandler) ListRoles(c *gin.Context) {
	principal, resource, ok := pairFromPath(c)
	if !ok {
		return
	}

	refs, err := h.query.RolesForResource(c.Request.Context(), principal, resource)
	if err != nil {
		response.Error(c, storeError(err))
		return
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	response.Success(c, http.StatusOK, gin.H{"roles": names})
}

// ListAssignedPrincipals enumerates principals holding grants on a resource,
// optionally intersected with a comma-separated candidates query parameter of
// type:id pairs.
func (h *GrantHandler) ListAssignedPrincipals(c *gin.Context) {
	resource := grants.ResourceRef{Type: c.Param("rtype"), ID: c.Param("rid")}

	candidates, err := parseCandidates(c.Query("candidates"))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("candidates must be a comma-separated list of type:id pairs"))
		return
	}

	assigned, err := h.query.AssignedPrincipals(c.Request.Context(), resource, candidates...)
	if err != nil {
		response.Error(c, storeError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"principals": assigned})
}

// IsAssigned reports whether a specific principal holds any grant on the resource.
func (h *GrantHandler) IsAssigned(c *gin.Context) {
	principal := grants.PrincipalRef{Type: c.Param("ptype"), ID: c.Param("pid")}
	resource := grants.ResourceRef{Type: c.Param("rtype"), ID: c.Param("rid")}

	assigned, err := h.query.IsPrincipalAssigned(c.Request.Context(), principal, resource)
	if err != nil {
		response.Error(c, storeError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assigned": assigned})
}

func pairFromPath(c *gin.Context) (grants.PrincipalRef, grants.ResourceRef, bool) {
	principal := grants.PrincipalRef{Type: c.Param("ptype"), ID: c.Param("pid")}
	resource := grants.ResourceRef{Type: c.Param("rtype"), ID: c.Param("rid")}
	if principal.Type == "" || principal.ID == "" || resource.Type == "" || resource.ID == "" {
		response.Error(c, apperrors.NewBadRequest("principal and resource references are required"))
		return grants.PrincipalRef{}, grants.ResourceRef{}, false
	}
	return principal, resource, true
}

func parseCandidates(raw string) ([]grants.PrincipalRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	refs := make([]grants.PrincipalRef, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, id, found := strings.Cut(part, ":")
		if !found || kind == "" || id == "" {
			return nil, errors.New("malformed candidate reference")
		}
		refs = append(refs, grants.PrincipalRef{Type: kind, ID: id})
	}
	return refs, nil
}

func grantOptions(grantedBy string, expiresAt *time.Time, metadata map[string]any) []grants.GrantOption {
	var opts []grants.GrantOption
	if grantedBy != "" {
		opts = append(opts, grants.WithGrantedBy(grantedBy))
	}
	if expiresAt != nil {
		opts = append(opts, grants.WithExpiry(*expiresAt))
	}
	if len(metadata) > 0 {
		opts = append(opts, grants.WithMetadata(metadata))
	}
	return opts
}

func checkResult(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

func storeError(err error) error {
	switch {
	case errors.Is(err, grants.ErrStoreUnavailable):
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	case errors.Is(err, grants.ErrInvalidReference):
		return apperrors.NewBadRequest(err.Error())
	}
	return err
}
