package tenant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/repository"
)

// Resolver loads tenant records for tenant-portal logins.
type Resolver struct {
	repo repository.TenantRepository
}

// NewResolver creates a tenant resolver.
func NewResolver(repo repository.TenantRepository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveSlug loads an active tenant by its URL slug.
func (r *Resolver) ResolveSlug(ctx context.Context, slug string) (domain.Tenant, error) {
	cleaned := strings.ToLower(strings.TrimSpace(slug))
	if cleaned == "" {
		zap.L().Warn("tenant resolver received empty slug")
		return domain.Tenant{}, fmt.Errorf("resolve tenant: empty slug")
	}

	tenantRow, err := r.repo.GetBySlug(ctx, cleaned)
	if err != nil {
		zap.L().Error("failed to resolve tenant", zap.String("slug", cleaned), zap.Error(err))
		return domain.Tenant{}, fmt.Errorf("resolve tenant: %w", err)
	}
	if tenantRow.Status != domain.TenantStatusActive {
		zap.L().Warn("tenant not active", zap.String("slug", cleaned), zap.Int64("tenant_id", tenantRow.ID))
		return domain.Tenant{}, fmt.Errorf("resolve tenant: tenant %q not active", cleaned)
	}

	zap.L().Debug("tenant resolved", zap.String("slug", cleaned), zap.Int64("tenant_id", tenantRow.ID))
	return tenantRow, nil
}

// ResolveID loads an active tenant by id. Used where a session already
// carries the tenant id and only the status needs re-checking.
func (r *Resolver) ResolveID(ctx context.Context, id int64) (domain.Tenant, error) {
	tenantRow, err := r.repo.GetByID(ctx, id)
	if err != nil {
		zap.L().Error("failed to resolve tenant", zap.Int64("tenant_id", id), zap.Error(err))
		return domain.Tenant{}, fmt.Errorf("resolve tenant: %w", err)
	}
	if tenantRow.Status != domain.TenantStatusActive {
		zap.L().Warn("tenant not active", zap.Int64("tenant_id", id))
		return domain.Tenant{}, fmt.Errorf("resolve tenant: tenant %d not active", id)
	}
	return tenantRow, nil
}
