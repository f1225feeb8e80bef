// Package tenant resolves and validates the tenant identity a request
// operates under, enforcing isolation when multi-tenancy is enabled.
package tenant

import (
	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/config"
)

// Resolve returns the effective tenant for a request. When multi-tenancy
// is disabled, every request operates under cfg.DefaultTenant regardless
// of what the caller asked for, so single-tenant deployments never need to
// think about tenant IDs at all. When enabled and requested is empty, the
// default tenant is used.
func Resolve(cfg config.TenancyConfig, requested string) string {
	if !cfg.Enabled {
		return cfg.DefaultTenant
	}
	if requested == "" {
		return cfg.DefaultTenant
	}
	return requested
}

// CheckAccess verifies that owner (the tenant a repository/collection
// belongs to) matches requester. It is a no-op when multi-tenancy is
// disabled. Returns an apperrors.KindAccessDenied error on mismatch.
func CheckAccess(cfg config.TenancyConfig, owner, requester string) error {
	if !cfg.Enabled {
		return nil
	}
	if owner == requester {
		return nil
	}
	return apperrors.AccessDenied("tenant.CheckAccess", "tenant does not own this resource").
		WithDetail("owner", owner).
		WithDetail("requester", requester)
}
