package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"anoint-auth/internal/cache"
	"anoint-auth/internal/domain"
	"anoint-auth/internal/repository"
)

// ProfileResolver convierte un principal del proveedor en un domain.User con rol.
type ProfileResolver struct {
	logger    *zap.Logger
	profiles  repository.ProfileRepository
	cache     *cache.SessionCache
	allowlist Allowlist
}

// NewProfileResolver acepta profiles nil: el rol sale solo de la allowlist.
func NewProfileResolver(logger *zap.Logger, profiles repository.ProfileRepository, sessionCache *cache.SessionCache, allowlist Allowlist) *ProfileResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileResolver{
		logger:    logger,
		profiles:  profiles,
		cache:     sessionCache,
		allowlist: allowlist,
	}
}

// Resolve nunca falla. Orden: cache de perfil, store de perfiles, sintesis desde el principal.
func (r *ProfileResolver) Resolve(ctx context.Context, p domain.Principal) domain.User {
	profile, ok := r.lookup(ctx, p.ID)
	if !ok {
		return r.fallback(p)
	}

	role := domain.RoleMember
	if profile.IsAdmin || r.allowlist.Contains(p.Email) {
		role = domain.RoleAdmin
	}
	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name = displayNameFor(p)
	}
	user := domain.User{
		ID:            p.ID,
		Email:         p.Email,
		Role:          role,
		DisplayName:   name,
		EmailVerified: p.EmailConfirmedAt != nil,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.UpdatedAt,
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = p.CreatedAt
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = p.UpdatedAt
	}
	return user
}

func (r *ProfileResolver) lookup(ctx context.Context, id string) (domain.Profile, bool) {
	if id == "" {
		return domain.Profile{}, false
	}
	if profile, ok := r.cache.GetProfile(ctx, id); ok {
		return profile, true
	}
	if r.profiles == nil {
		return domain.Profile{}, false
	}
	profile, err := r.profiles.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("profile lookup failed, using fallback", zap.String("user_id", id), zap.Error(err))
		}
		return domain.Profile{}, false
	}
	r.cache.CacheProfile(ctx, profile)
	return profile, true
}

func (r *ProfileResolver) fallback(p domain.Principal) domain.User {
	role := domain.RoleMember
	if r.allowlist.Contains(p.Email) {
		role = domain.RoleAdmin
	}
	return domain.User{
		ID:            p.ID,
		Email:         p.Email,
		Role:          role,
		DisplayName:   displayNameFor(p),
		EmailVerified: p.EmailConfirmedAt != nil,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func displayNameFor(p domain.Principal) string {
	if name := p.MetadataName(); name != "" {
		return name
	}
	return domain.EmailLocalPart(p.Email)
}
