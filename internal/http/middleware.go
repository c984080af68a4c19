package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anoint-auth/internal/autherr"
	"anoint-auth/internal/cache"
	"anoint-auth/internal/domain"
	"anoint-auth/internal/identity"
	"anoint-auth/internal/metrics"
	"anoint-auth/internal/policy"
	"anoint-auth/internal/service"
)

const (
	ctxClientKey  = "auth_client"
	ctxGatewayKey = "auth_gateway"
	ctxUserKey    = "auth_user"

	accessCookie  = "anoint_access"
	refreshCookie = "anoint_refresh"
)

// SessionSource restaura el cliente del proveedor a partir de los tokens de la peticion.
type SessionSource interface {
	ClientFromTokens(ctx context.Context, accessToken, refreshToken string) *identity.Client
}

// GatewayFactory construye el gateway de una peticion sobre su cliente.
type GatewayFactory func(identity.Provider) *service.CredentialGateway

// SessionMiddleware crea el cliente y el gateway de la peticion. Los tokens se
// leen del header Authorization (Bearer) o de las cookies.
func SessionMiddleware(sessions SessionSource, gatewayFor GatewayFactory, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil || gatewayFor == nil {
			writeAuthError(c, autherr.New(autherr.CodeConfigError))
			c.Abort()
			return
		}
		access, refresh := tokensFromRequest(c)
		client := sessions.ClientFromTokens(c.Request.Context(), access, refresh)
		if a, r := client.Tokens(); a != access || r != refresh {
			writeSessionCookies(c, client, secureCookies)
		}
		c.Set(ctxClientKey, client)
		c.Set(ctxGatewayKey, gatewayFor(client))
		c.Next()
	}
}

func tokensFromRequest(c *gin.Context) (string, string) {
	access := ""
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		access = strings.TrimSpace(header[len("Bearer "):])
	}
	if access == "" {
		access, _ = c.Cookie(accessCookie)
	}
	refresh := strings.TrimSpace(c.GetHeader("X-Refresh-Token"))
	if refresh == "" {
		refresh, _ = c.Cookie(refreshCookie)
	}
	return access, refresh
}

func writeSessionCookies(c *gin.Context, client *identity.Client, secure bool) {
	access, refresh := client.Tokens()
	maxAge := -1
	if access != "" {
		maxAge = int((30 * 24 * time.Hour).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, access, maxAge, "/", "", secure, true)
	c.SetCookie(refreshCookie, refresh, maxAge, "/", "", secure, true)
}

// GetGateway obtiene el gateway de la peticion.
func GetGateway(c *gin.Context) (*service.CredentialGateway, bool) {
	val, ok := c.Get(ctxGatewayKey)
	if !ok {
		return nil, false
	}
	gw, ok := val.(*service.CredentialGateway)
	return gw, ok
}

func GetClient(c *gin.Context) (*identity.Client, bool) {
	val, ok := c.Get(ctxClientKey)
	if !ok {
		return nil, false
	}
	client, ok := val.(*identity.Client)
	return client, ok
}

// currentUser resuelve una sola vez por peticion.
func currentUser(c *gin.Context) *domain.User {
	if val, ok := c.Get(ctxUserKey); ok {
		u, _ := val.(*domain.User)
		return u
	}
	var user *domain.User
	if gw, ok := GetGateway(c); ok {
		user = gw.GetCurrentUser(c.Request.Context())
	}
	c.Set(ctxUserKey, user)
	return user
}

// RouteGuard aplica policy.ValidateRouteAccess a las rutas de pagina (GET/HEAD).
func RouteGuard(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		if policy.IsPublicRoute(path) {
			c.Next()
			return
		}
		decision := policy.ValidateRouteAccess(currentUser(c), path)
		if decision.Allowed {
			c.Next()
			return
		}
		m.Redirect(string(decision.Reason))
		logger.Debug("route guard redirect",
			zap.String("path", path),
			zap.String("to", decision.RedirectPath),
			zap.String("reason", string(decision.Reason)),
		)
		c.Redirect(http.StatusFound, decision.RedirectPath)
		c.Abort()
	}
}

// RequireRole corta con 401/403 las rutas API que exigen un rol.
func RequireRole(required domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			writeAuthError(c, autherr.New(autherr.CodeSessionExpired))
			c.Abort()
			return
		}
		if !policy.CanAccess(user.Role, required) {
			writeForbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit limita por IP con un contador de ventana fija. Si la cache no esta
// disponible deja pasar.
func RateLimit(sessionCache *cache.SessionCache, kind string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := sessionCache.CheckRateLimit(c.Request.Context(), kind+":"+c.ClientIP(), maxRequests, window)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.RequestsLeft))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
		if !res.Allowed {
			writeAuthError(c, autherr.New(autherr.CodeAccountLocked))
			c.Abort()
			return
		}
		c.Next()
	}
}
