package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anoint-auth/internal/autherr"
	"anoint-auth/internal/cache"
	"anoint-auth/internal/identity"
	"anoint-auth/internal/policy"
	"anoint-auth/internal/service"
)

// AuthHandler expone el CredentialGateway de cada peticion como API JSON.
type AuthHandler struct {
	logger        *zap.Logger
	sessionCache  *cache.SessionCache
	secureCookies bool
}

func NewAuthHandler(logger *zap.Logger, sessionCache *cache.SessionCache, secureCookies bool) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{logger: logger, sessionCache: sessionCache, secureCookies: secureCookies}
}

// Codigos propios de la capa HTTP; no vienen del proveedor.
const (
	codeInvalidRequest autherr.Code = "invalid_request"
	codeForbidden      autherr.Code = "forbidden"
)

var codeStatus = map[autherr.Code]int{
	codeInvalidRequest:             http.StatusBadRequest,
	codeForbidden:                  http.StatusForbidden,
	autherr.CodeInvalidCredentials: http.StatusUnauthorized,
	autherr.CodeEmailNotVerified:   http.StatusForbidden,
	autherr.CodeAccountLocked:      http.StatusTooManyRequests,
	autherr.CodeSessionExpired:     http.StatusUnauthorized,
	autherr.CodeWeakPassword:       http.StatusUnprocessableEntity,
	autherr.CodeEmailExists:        http.StatusConflict,
	autherr.CodeDBConnectionFailed: http.StatusServiceUnavailable,
	autherr.CodeDBQueryFailed:      http.StatusServiceUnavailable,
	autherr.CodeRecordNotFound:     http.StatusNotFound,
	autherr.CodeNetworkOffline:     http.StatusServiceUnavailable,
	autherr.CodeNetworkTimeout:     http.StatusGatewayTimeout,
	autherr.CodeSystemError:        http.StatusInternalServerError,
	autherr.CodeConfigError:        http.StatusInternalServerError,
	autherr.CodeInitError:          http.StatusInternalServerError,
}

func statusFor(code autherr.Code) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeAuthError(c *gin.Context, err *autherr.Error) {
	if err == nil {
		err = autherr.New(autherr.CodeSystemError)
	}
	c.JSON(statusFor(err.Code), gin.H{"error": err})
}

func writeBadRequest(c *gin.Context, message string) {
	writeAuthError(c, &autherr.Error{
		Code:        codeInvalidRequest,
		Message:     message,
		Remediation: "Check the request fields and try again.",
	})
}

func writeForbidden(c *gin.Context) {
	writeAuthError(c, &autherr.Error{
		Code:        codeForbidden,
		Message:     "You do not have access to this resource.",
		Remediation: "Sign in with an account that has the required role.",
	})
}

// SignIn maneja POST /api/auth/sign-in.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "email and password are required")
		return
	}
	gw, client, ok := requestSession(c)
	if !ok {
		return
	}
	res := gw.SignIn(c.Request.Context(), req.Email, req.Password)
	if !res.Success {
		writeAuthError(c, res.Err)
		return
	}
	writeSessionCookies(c, client, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{
		"user":     res.User,
		"redirect": policy.GetRedirectPath(res.User),
	})
}

// SignUp maneja POST /api/auth/sign-up. La cuenta queda pendiente de verificacion.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "email and password are required")
		return
	}
	gw, _, ok := requestSession(c)
	if !ok {
		return
	}
	res := gw.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if !res.Success {
		writeAuthError(c, res.Err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":   "verification_sent",
		"redirect": policy.VerifyEmailPath,
	})
}

// SignOut maneja POST /api/auth/sign-out; siempre responde 204.
func (h *AuthHandler) SignOut(c *gin.Context) {
	gw, client, ok := requestSession(c)
	if !ok {
		return
	}
	gw.SignOut(c.Request.Context())
	writeSessionCookies(c, client, h.secureCookies)
	c.Status(http.StatusNoContent)
}

// Verify maneja POST /api/auth/verify con el codigo enviado al registrarse.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "email and code are required")
		return
	}
	gw, client, ok := requestSession(c)
	if !ok {
		return
	}
	if _, err := client.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		writeAuthError(c, autherr.Classify(err))
		return
	}
	writeSessionCookies(c, client, h.secureCookies)
	user := gw.GetCurrentUser(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"redirect": policy.GetRedirectPath(user),
	})
}

// ResetPassword maneja POST /api/auth/reset-password. La respuesta no revela si la cuenta existe.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "email is required")
		return
	}
	gw, _, ok := requestSession(c)
	if !ok {
		return
	}
	res := gw.RequestPasswordReset(c.Request.Context(), req.Email)
	if !res.Success {
		writeAuthError(c, res.Err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reset_sent"})
}

// Recover maneja POST /api/auth/recover: canjea el codigo del enlace por una sesion.
func (h *AuthHandler) Recover(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "email and code are required")
		return
	}
	_, client, ok := requestSession(c)
	if !ok {
		return
	}
	if _, err := client.Recover(c.Request.Context(), req.Email, req.Code); err != nil {
		writeAuthError(c, autherr.Classify(err))
		return
	}
	writeSessionCookies(c, client, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"status": "recovered", "redirect": policy.ResetPasswordPath})
}

// UpdatePassword maneja POST /api/auth/update-password sobre la sesion actual.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "password is required")
		return
	}
	gw, client, ok := requestSession(c)
	if !ok {
		return
	}
	res := gw.UpdatePassword(c.Request.Context(), req.Password)
	if !res.Success {
		writeAuthError(c, res.Err)
		return
	}
	writeSessionCookies(c, client, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"user": res.User})
}

// Refresh maneja POST /api/auth/refresh y rota las cookies de sesion.
func (h *AuthHandler) Refresh(c *gin.Context) {
	_, client, ok := requestSession(c)
	if !ok {
		return
	}
	sess, err := client.RefreshSession(c.Request.Context())
	if err != nil {
		writeSessionCookies(c, client, h.secureCookies)
		writeAuthError(c, autherr.Classify(err))
		return
	}
	writeSessionCookies(c, client, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"expires_at": sess.ExpiresAt})
}

// Me maneja GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		writeAuthError(c, autherr.New(autherr.CodeSessionExpired))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Access maneja GET /api/auth/access?path=... y devuelve la decision de la politica.
func (h *AuthHandler) Access(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		writeBadRequest(c, "path is required")
		return
	}
	c.JSON(http.StatusOK, policy.Evaluate(currentUser(c), path))
}

// CacheHealth maneja GET /api/admin/cache/health.
func (h *AuthHandler) CacheHealth(c *gin.Context) {
	health := h.sessionCache.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !health.Available {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"enabled":    h.sessionCache.Enabled(),
		"available":  health.Available,
		"latency_ms": health.Latency.Milliseconds(),
	})
}

func (h *AuthHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionCache.Stats(c.Request.Context()))
}

// ClearCache maneja POST /api/admin/cache/clear.
func (h *AuthHandler) ClearCache(c *gin.Context) {
	deleted := h.sessionCache.ClearAllAuthCache(c.Request.Context())
	h.logger.Info("auth cache cleared", zap.Int("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func requestSession(c *gin.Context) (*service.CredentialGateway, *identity.Client, bool) {
	gw, ok := GetGateway(c)
	client, okClient := GetClient(c)
	if !ok || !okClient {
		writeAuthError(c, autherr.New(autherr.CodeConfigError))
		return nil, nil, false
	}
	return gw, client, true
}
