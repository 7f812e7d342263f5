// Package access decides whether the principal carried in a context may
// perform an operation.
package access

import (
	"context"
	"fmt"
	"strings"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
)

// Role of a principal
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
	// RoleSystem is used by background jobs such as the renewal scheduler
	RoleSystem Role = "system"
)

// Permission names an object and an action, e.g. "certificates:create"
type Permission string

// Objects
const (
	ObjectProxyHosts       = "proxy_hosts"
	ObjectRedirectionHosts = "redirection_hosts"
	ObjectDeadHosts        = "dead_hosts"
	ObjectStreams          = "streams"
	ObjectCertificates     = "certificates"
	ObjectAuditLog         = "audit-log"
)

// Actions
const (
	ActionList   = "list"
	ActionGet    = "get"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Perm builds a permission from an object and an action
func Perm(object, action string) Permission {
	return Permission(fmt.Sprintf("%s:%s", object, action))
}

// Principal is the caller of an operation
type Principal struct {
	UserID   int
	Username string
	Role     Role
}

// System is the principal of background jobs
func System() Principal {
	return Principal{UserID: 0, Username: "system", Role: RoleSystem}
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal carried by ctx
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserID returns the id of the principal in ctx, 0 when there is none
func UserID(ctx context.Context) int {
	p, _ := FromContext(ctx)
	return p.UserID
}

// Authorizer checks permissions
type Authorizer interface {
	Can(ctx context.Context, perm Permission) error
}

// RoleAuthorizer grants permissions by role. Admin and system may do
// anything, users may manage hosts and certificates, viewers may only read.
type RoleAuthorizer struct{}

// NewRoleAuthorizer creates a RoleAuthorizer
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

// Can implements Authorizer
func (a *RoleAuthorizer) Can(ctx context.Context, perm Permission) error {
	p, ok := FromContext(ctx)
	if !ok {
		return apperr.Permission("permission denied: no principal")
	}
	switch p.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RoleUser:
		if perm != Perm(ObjectAuditLog, ActionList) {
			return nil
		}
	case RoleViewer:
		if isRead(perm) && perm != Perm(ObjectAuditLog, ActionList) {
			return nil
		}
	}
	return apperr.Permission("permission denied: %s", perm)
}

func isRead(perm Permission) bool {
	s := string(perm)
	return strings.HasSuffix(s, ":"+ActionList) || strings.HasSuffix(s, ":"+ActionGet)
}

// AllowAll permits everything
type AllowAll struct{}

// Can implements Authorizer
func (AllowAll) Can(context.Context, Permission) error { return nil }

// HostObject returns the permission object of a host variant
func HostObject(t model.HostType) string {
	switch t {
	case model.HostTypeRedirection:
		return ObjectRedirectionHosts
	case model.HostTypeDead:
		return ObjectDeadHosts
	case model.HostTypeStream:
		return ObjectStreams
	}
	return ObjectProxyHosts
}
