package tenant

import (
	"testing"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestResolve_DisabledAlwaysReturnsDefault(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: false, DefaultTenant: "default"}
	assert.Equal(t, "default", Resolve(cfg, "acme"))
}

func TestResolve_EnabledReturnsRequested(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: true, DefaultTenant: "default"}
	assert.Equal(t, "acme", Resolve(cfg, "acme"))
}

func TestResolve_EnabledFallsBackToDefaultWhenEmpty(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: true, DefaultTenant: "default"}
	assert.Equal(t, "default", Resolve(cfg, ""))
}

func TestCheckAccess_DisabledNeverErrors(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: false}
	assert.NoError(t, CheckAccess(cfg, "acme", "other"))
}

func TestCheckAccess_EnabledMismatchErrors(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: true}
	err := CheckAccess(cfg, "acme", "other")
	assert.Error(t, err)
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
}

func TestCheckAccess_EnabledMatchSucceeds(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: true}
	assert.NoError(t, CheckAccess(cfg, "acme", "acme"))
}
