// Package policy decide el acceso a rutas a partir del usuario y el path.
// Todas las funciones son puras.
package policy

import (
	"strings"

	"anoint-auth/internal/domain"
)

const (
	LoginPath           = "/login"
	SignupPath          = "/signup"
	ResetPasswordPath   = "/reset-password"
	VerifyEmailPath     = "/verify-email"
	AdminDashboardPath  = "/admin/dashboard"
	MemberDashboardPath = "/member/dashboard"
	adminPrefix         = "/admin"
)

// Reason explica una decision; se usa como etiqueta de metricas y en logs.
type Reason string

const (
	ReasonPublic               Reason = "public"
	ReasonAuthorized           Reason = "authorized"
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonEmailUnverified      Reason = "email_unverified"
	ReasonInsufficientRole     Reason = "insufficient_role"
	ReasonAdminLanding         Reason = "admin_landing"
	ReasonAlreadyAuthenticated Reason = "already_authenticated"
)

// Decision es el resultado de evaluar (usuario, path).
type Decision struct {
	Allowed      bool   `json:"allowed"`
	RedirectPath string `json:"redirect_path,omitempty"`
	Reason       Reason `json:"reason,omitempty"`
}

var publicRoutes = map[string]struct{}{
	"/":               {},
	LoginPath:         {},
	SignupPath:        {},
	ResetPasswordPath: {},
	"/auth/callback":  {},
	VerifyEmailPath:   {},
	"/about":          {},
	"/contact":        {},
	"/products":       {},
	"/privacy":        {},
	"/terms":          {},
}

var publicPrefixes = []string{"/auth/", "/products/"}

var authOnlyRoutes = map[string]struct{}{
	LoginPath:         {},
	SignupPath:        {},
	ResetPasswordPath: {},
}

// normalizePath quita query, fragmento y la barra final.
func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func IsPublicRoute(path string) bool {
	path = normalizePath(path)
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsAuthOnlyRoute indica las paginas que solo tienen sentido sin sesion.
func IsAuthOnlyRoute(path string) bool {
	_, ok := authOnlyRoutes[normalizePath(path)]
	return ok
}

func IsAdminRoute(path string) bool {
	path = normalizePath(path)
	return path == adminPrefix || strings.HasPrefix(path, adminPrefix+"/")
}

// GetRedirectPath devuelve el destino por defecto para el usuario.
func GetRedirectPath(user *domain.User) string {
	switch {
	case user == nil:
		return LoginPath
	case !user.EmailVerified:
		return VerifyEmailPath
	case user.IsAdmin():
		return AdminDashboardPath
	default:
		return MemberDashboardPath
	}
}

// ValidateRouteAccess es la decision para puntos de enforcement. Orden de
// desempate: ruta publica, autenticacion, verificacion, rol.
func ValidateRouteAccess(user *domain.User, path string) Decision {
	path = normalizePath(path)
	if IsPublicRoute(path) {
		return Decision{Allowed: true, Reason: ReasonPublic}
	}
	if user == nil {
		return redirect(LoginPath, ReasonUnauthenticated)
	}
	if !user.EmailVerified {
		return redirect(VerifyEmailPath, ReasonEmailUnverified)
	}
	if IsAdminRoute(path) && !user.IsAdmin() {
		return redirect(MemberDashboardPath, ReasonInsufficientRole)
	}
	if user.IsAdmin() && path == MemberDashboardPath {
		return redirect(AdminDashboardPath, ReasonAdminLanding)
	}
	return Decision{Allowed: true, Reason: ReasonAuthorized}
}

// Evaluate aplica las reglas reactivas del efecto de redireccion: las mismas que
// ValidateRouteAccess mas el rebote de un usuario verificado fuera de login/signup/reset.
func Evaluate(user *domain.User, path string) Decision {
	if user != nil && user.EmailVerified && IsAuthOnlyRoute(path) {
		return redirect(GetRedirectPath(user), ReasonAlreadyAuthenticated)
	}
	return ValidateRouteAccess(user, path)
}

func redirect(to string, reason Reason) Decision {
	return Decision{Allowed: false, RedirectPath: to, Reason: reason}
}

// HasRole compara el rol exacto.
func HasRole(user *domain.User, role domain.Role) bool {
	return user != nil && user.Role == role
}

func IsAdmin(user *domain.User) bool {
	return HasRole(user, domain.RoleAdmin)
}

func IsMember(user *domain.User) bool {
	return HasRole(user, domain.RoleMember)
}

func roleRank(role domain.Role) int {
	switch role {
	case domain.RoleAdmin:
		return 2
	case domain.RoleMember:
		return 1
	default:
		return 0
	}
}

// CanAccess aplica la jerarquia admin >= member.
func CanAccess(userRole, required domain.Role) bool {
	return roleRank(userRole) > 0 && roleRank(userRole) >= roleRank(required)
}
