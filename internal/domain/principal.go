package domain

import (
	"strings"
	"time"
)

// Principal es el usuario crudo que entrega el proveedor de identidad.
type Principal struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	EmailConfirmedAt *time.Time        `json:"email_confirmed_at,omitempty"`
	Metadata         map[string]string `json:"user_metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// MetadataName devuelve el nombre guardado en la metadata del proveedor, si existe.
func (p Principal) MetadataName() string {
	for _, key := range []string{"display_name", "name", "full_name"} {
		if v := strings.TrimSpace(p.Metadata[key]); v != "" {
			return v
		}
	}
	return ""
}

// EmailLocalPart devuelve la parte previa a la arroba.
func EmailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
