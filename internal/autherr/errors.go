// Package autherr define la taxonomia plana de errores de autenticacion y su
// clasificacion a partir del texto crudo del proveedor de identidad.
package autherr

import (
	"context"
	"errors"
	"strings"
)

// Code identifica un tipo de error estable para la UI.
type Code string

const (
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeEmailNotVerified   Code = "email_not_verified"
	CodeAccountLocked      Code = "account_locked"
	CodeSessionExpired     Code = "session_expired"
	CodeWeakPassword       Code = "weak_password"
	CodeEmailExists        Code = "email_exists"
	CodeDBConnectionFailed Code = "db_connection_failed"
	CodeDBQueryFailed      Code = "db_query_failed"
	CodeRecordNotFound     Code = "record_not_found"
	CodeNetworkOffline     Code = "network_offline"
	CodeNetworkTimeout     Code = "network_timeout"
	CodeSystemError        Code = "system_error"
	CodeConfigError        Code = "config_error"
	CodeInitError          Code = "init_error"
)

// Error es el error estructurado que se muestra al usuario junto con su remediacion.
type Error struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

// Is compara por codigo para que errors.Is funcione contra los valores de New.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code
}

type entry struct {
	message     string
	remediation string
}

var catalog = map[Code]entry{
	CodeInvalidCredentials: {"Invalid email or password.", "Check your email and password and try again, or reset your password."},
	CodeEmailNotVerified:   {"Your email address has not been verified.", "Open the verification link we sent to your inbox, then sign in again."},
	CodeAccountLocked:      {"Too many sign-in attempts.", "Wait 15 minutes before trying again or reset your password."},
	CodeSessionExpired:     {"Your session has expired.", "Sign in again to continue."},
	CodeWeakPassword:       {"The password is too weak.", "Use at least 6 characters, mixing letters and numbers."},
	CodeEmailExists:        {"An account with this email already exists.", "Sign in instead, or reset your password if you forgot it."},
	CodeDBConnectionFailed: {"Could not connect to the database.", "Try again in a few moments."},
	CodeDBQueryFailed:      {"The request could not be completed.", "Try again; contact support if the problem persists."},
	CodeRecordNotFound:     {"The requested record was not found.", "Check the information and try again."},
	CodeNetworkOffline:     {"You appear to be offline.", "Check your internet connection and try again."},
	CodeNetworkTimeout:     {"The request timed out.", "Check your connection and try again."},
	CodeSystemError:        {"Something went wrong.", "Try again; contact support if the problem persists."},
	CodeConfigError:        {"Authentication is not configured correctly.", "Contact the site administrator."},
	CodeInitError:          {"Authentication failed to start.", "Refresh the page or clear your browser cache and try again."},
}

// New construye el error canonico de un codigo. Codigos desconocidos se tratan como system_error.
func New(code Code) *Error {
	e, ok := catalog[code]
	if !ok {
		code = CodeSystemError
		e = catalog[code]
	}
	return &Error{Code: code, Message: e.message, Remediation: e.remediation}
}

// Codes devuelve todos los codigos de la taxonomia.
func Codes() []Code {
	return []Code{
		CodeInvalidCredentials, CodeEmailNotVerified, CodeAccountLocked, CodeSessionExpired,
		CodeWeakPassword, CodeEmailExists, CodeDBConnectionFailed, CodeDBQueryFailed,
		CodeRecordNotFound, CodeNetworkOffline, CodeNetworkTimeout, CodeSystemError,
		CodeConfigError, CodeInitError,
	}
}

// rules se evalua en orden; la primera coincidencia gana.
var rules = []struct {
	substr string
	code   Code
}{
	{"invalid login credentials", CodeInvalidCredentials},
	{"invalid email or password", CodeInvalidCredentials},
	{"invalid credentials", CodeInvalidCredentials},
	{"email not confirmed", CodeEmailNotVerified},
	{"email not verified", CodeEmailNotVerified},
	{"account locked", CodeAccountLocked},
	{"too many requests", CodeAccountLocked},
	{"rate limit", CodeAccountLocked},
	{"for security purposes, you can only request", CodeAccountLocked},
	{"jwt expired", CodeSessionExpired},
	{"session expired", CodeSessionExpired},
	{"session not found", CodeSessionExpired},
	{"auth session missing", CodeSessionExpired},
	{"refresh token not found", CodeSessionExpired},
	{"invalid refresh token", CodeSessionExpired},
	{"invalid jwt", CodeSessionExpired},
	{"token has expired", CodeSessionExpired},
	{"password should be at least", CodeWeakPassword},
	{"weak password", CodeWeakPassword},
	{"password is too weak", CodeWeakPassword},
	{"user already registered", CodeEmailExists},
	{"already registered", CodeEmailExists},
	{"email already exists", CodeEmailExists},
	{"duplicate key", CodeEmailExists},
	{"timeout", CodeNetworkTimeout},
	{"timed out", CodeNetworkTimeout},
	{"deadline exceeded", CodeNetworkTimeout},
	{"failed to connect", CodeDBConnectionFailed},
	{"connection refused", CodeDBConnectionFailed},
	{"database connection", CodeDBConnectionFailed},
	{"failed to fetch", CodeNetworkOffline},
	{"network", CodeNetworkOffline},
	{"offline", CodeNetworkOffline},
	{"does not exist", CodeDBQueryFailed},
	{"syntax error", CodeDBQueryFailed},
	{"query failed", CodeDBQueryFailed},
	{"no rows", CodeRecordNotFound},
	{"not found", CodeRecordNotFound},
	{"not configured", CodeConfigError},
	{"invalid api key", CodeConfigError},
	{"missing configuration", CodeConfigError},
}

// ClassifyMessage mapea el texto crudo del proveedor a un error de la taxonomia.
// Nunca falla: mensajes desconocidos terminan en system_error.
func ClassifyMessage(msg string) *Error {
	lower := strings.ToLower(strings.TrimSpace(msg))
	if lower == "" {
		return New(CodeSystemError)
	}
	for _, r := range rules {
		if strings.Contains(lower, r.substr) {
			return New(r.code)
		}
	}
	return New(CodeSystemError)
}

// Classify acepta cualquier error; un *Error pasa sin cambios.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeNetworkTimeout)
	}
	return ClassifyMessage(err.Error())
}
