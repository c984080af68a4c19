package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"anoint-auth/internal/domain"
)

func user(role domain.Role, verified bool) *domain.User {
	return &domain.User{ID: "u1", Email: "u@example.com", Role: role, EmailVerified: verified}
}

func TestIsPublicRoute(t *testing.T) {
	for _, p := range []string{"/", "/login", "/signup/", "/reset-password?token=x", "/auth/callback", "/auth/confirm", "/products", "/products/42", "/about", "/contact", "/privacy", "/terms", "/verify-email"} {
		assert.True(t, IsPublicRoute(p), p)
	}
	for _, p := range []string{"/admin", "/admin/dashboard", "/member/dashboard", "/cart", "/productsx", "/authx"} {
		assert.False(t, IsPublicRoute(p), p)
	}
}

func TestIsAdminRoute(t *testing.T) {
	assert.True(t, IsAdminRoute("/admin"))
	assert.True(t, IsAdminRoute("/admin/orders/1"))
	assert.False(t, IsAdminRoute("/administrator"))
	assert.False(t, IsAdminRoute("/member/dashboard"))
}

func TestGetRedirectPath(t *testing.T) {
	assert.Equal(t, LoginPath, GetRedirectPath(nil))
	assert.Equal(t, VerifyEmailPath, GetRedirectPath(user(domain.RoleAdmin, false)))
	assert.Equal(t, AdminDashboardPath, GetRedirectPath(user(domain.RoleAdmin, true)))
	assert.Equal(t, MemberDashboardPath, GetRedirectPath(user(domain.RoleMember, true)))
}

func TestEvaluate_Table(t *testing.T) {
	admin := user(domain.RoleAdmin, true)
	member := user(domain.RoleMember, true)
	unverified := user(domain.RoleMember, false)

	cases := []struct {
		name string
		user *domain.User
		path string
		want Decision
	}{
		{"anonymous public", nil, "/about", Decision{Allowed: true, Reason: ReasonPublic}},
		{"anonymous protected", nil, "/member/dashboard", Decision{RedirectPath: LoginPath, Reason: ReasonUnauthenticated}},
		{"anonymous login", nil, "/login", Decision{Allowed: true, Reason: ReasonPublic}},
		{"unverified protected", unverified, "/member/orders", Decision{RedirectPath: VerifyEmailPath, Reason: ReasonEmailUnverified}},
		{"unverified on verify page", unverified, "/verify-email", Decision{Allowed: true, Reason: ReasonPublic}},
		{"unverified on login stays", unverified, "/login", Decision{Allowed: true, Reason: ReasonPublic}},
		{"member on admin", member, "/admin/products", Decision{RedirectPath: MemberDashboardPath, Reason: ReasonInsufficientRole}},
		{"admin on member landing", admin, "/member/dashboard", Decision{RedirectPath: AdminDashboardPath, Reason: ReasonAdminLanding}},
		{"admin on member subpage", admin, "/member/settings", Decision{Allowed: true, Reason: ReasonAuthorized}},
		{"admin on admin", admin, "/admin/dashboard", Decision{Allowed: true, Reason: ReasonAuthorized}},
		{"member on login", member, "/login", Decision{RedirectPath: MemberDashboardPath, Reason: ReasonAlreadyAuthenticated}},
		{"admin on signup", admin, "/signup", Decision{RedirectPath: AdminDashboardPath, Reason: ReasonAlreadyAuthenticated}},
		{"member on home", member, "/", Decision{Allowed: true, Reason: ReasonPublic}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.user, tc.path))
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	admin := user(domain.RoleAdmin, true)
	for i := 0; i < 10; i++ {
		assert.Equal(t, Decision{RedirectPath: AdminDashboardPath, Reason: ReasonAdminLanding}, Evaluate(admin, "/member/dashboard"))
		assert.True(t, Evaluate(admin, "/admin/dashboard").Allowed)
	}
}

// Seguir la redireccion siempre termina en una pagina permitida: sin bucles.
func TestEvaluate_RedirectTargetsAreStable(t *testing.T) {
	users := []*domain.User{nil, user(domain.RoleAdmin, true), user(domain.RoleMember, true), user(domain.RoleMember, false), user(domain.RoleAdmin, false)}
	paths := []string{"/", "/login", "/signup", "/reset-password", "/verify-email", "/admin", "/admin/dashboard", "/member/dashboard", "/member/profile", "/cart"}
	for _, u := range users {
		for _, p := range paths {
			d := Evaluate(u, p)
			if d.Allowed {
				continue
			}
			next := Evaluate(u, d.RedirectPath)
			assert.True(t, next.Allowed, "user %+v: %s -> %s -> %+v", u, p, d.RedirectPath, next)
		}
	}
}

func TestValidateRouteAccess_AgreesWithEvaluate(t *testing.T) {
	users := []*domain.User{nil, user(domain.RoleAdmin, true), user(domain.RoleMember, true), user(domain.RoleMember, false)}
	paths := []string{"/", "/about", "/admin/orders", "/member/dashboard", "/member/x", "/checkout"}
	for _, u := range users {
		for _, p := range paths {
			v := ValidateRouteAccess(u, p)
			if !v.Allowed {
				assert.Equal(t, v, Evaluate(u, p), "user %+v path %s", u, p)
			}
		}
	}
	assert.True(t, ValidateRouteAccess(user(domain.RoleMember, true), "/login").Allowed)
}

func TestRoleHelpers(t *testing.T) {
	admin := user(domain.RoleAdmin, true)
	member := user(domain.RoleMember, true)

	assert.True(t, IsAdmin(admin))
	assert.False(t, IsAdmin(member))
	assert.True(t, IsMember(member))
	assert.False(t, IsMember(nil))
	assert.True(t, HasRole(member, domain.RoleMember))

	assert.True(t, CanAccess(domain.RoleAdmin, domain.RoleMember))
	assert.True(t, CanAccess(domain.RoleAdmin, domain.RoleAdmin))
	assert.True(t, CanAccess(domain.RoleMember, domain.RoleMember))
	assert.False(t, CanAccess(domain.RoleMember, domain.RoleAdmin))
	assert.False(t, CanAccess(domain.Role(""), domain.RoleMember))
}
