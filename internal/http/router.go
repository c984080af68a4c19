package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anoint-auth/internal/cache"
	"anoint-auth/internal/domain"
	"anoint-auth/internal/metrics"
)

// RouterDeps agrupa lo que el router necesita para construir la sesion por peticion.
type RouterDeps struct {
	Sessions       SessionSource
	GatewayFor     GatewayFactory
	Cache          *cache.SessionCache
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	SecureCookies  bool

	// Limite por IP para /api/auth; 0 lo deshabilita.
	AuthRequestsPerMinute int
	// Proxies cuyo X-Forwarded-For se acepta. Vacio: ninguno.
	TrustedProxies []string
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(logger *zap.Logger, authH *AuthHandler, deps RouterDeps) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, trusting none", zap.Strings("proxies", deps.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	session := SessionMiddleware(deps.Sessions, deps.GatewayFor, deps.SecureCookies)

	api := r.Group("/api", jsonContentTypeMiddleware(), session)

	auth := api.Group("/auth")
	if deps.AuthRequestsPerMinute > 0 {
		auth.Use(RateLimit(deps.Cache, "auth", deps.AuthRequestsPerMinute, time.Minute))
	}
	auth.POST("/sign-in", authH.SignIn)
	auth.POST("/sign-up", authH.SignUp)
	auth.POST("/sign-out", authH.SignOut)
	auth.POST("/verify", authH.Verify)
	auth.POST("/reset-password", authH.ResetPassword)
	auth.POST("/recover", authH.Recover)
	auth.POST("/update-password", authH.UpdatePassword)
	auth.POST("/refresh", authH.Refresh)
	auth.GET("/me", authH.Me)
	auth.GET("/access", authH.Access)

	admin := api.Group("/admin", RequireRole(domain.RoleAdmin))
	admin.GET("/cache/health", authH.CacheHealth)
	admin.GET("/cache/stats", authH.CacheStats)
	admin.POST("/cache/clear", authH.ClearCache)

	// Cualquier otra ruta es una pagina: pasa por el guard de rutas.
	r.NoRoute(jsonContentTypeMiddleware(), session, RouteGuard(logger, deps.Metrics), pageHandler)

	return r
}

// pageHandler responde por las paginas que el guard deja pasar.
func pageHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"path": c.Request.URL.Path,
		"user": currentUser(c),
	})
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
