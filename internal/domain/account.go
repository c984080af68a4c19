package domain

import "time"

// Account es el registro de credenciales que guarda el proveedor local de identidad.
type Account struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name,omitempty"`
	PasswordHash     string     `json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	OtpCodeHash      string     `json:"-"`
	OtpPurpose       string     `json:"-"`
	OtpExpiresAt     *time.Time `json:"otp_expires_at,omitempty"`
	OtpAttempts      int        `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Principal proyecta la cuenta al formato publico del proveedor.
func (a Account) Principal() Principal {
	p := Principal{
		ID:               a.ID,
		Email:            a.Email,
		EmailConfirmedAt: a.EmailConfirmedAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.DisplayName != "" {
		p.Metadata = map[string]string{"display_name": a.DisplayName}
	}
	return p
}
