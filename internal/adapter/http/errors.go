package http

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantdb/internal/domain"
	"github.com/neomorfeo/tenantdb/internal/registry"
)

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTenantNotFound) {
		return huma.Error404NotFound("tenant not found")
	}
	if errors.Is(err, registry.ErrConnectionNotFound) {
		return huma.Error404NotFound(err.Error())
	}

	var (
		identityErr *domain.IdentityError
		missingErr  *domain.MissingIdentityError
		orderErr    *domain.OrderingViolationError
		trErr       *domain.TransitionError
		conflictErr *domain.ConflictError
		timeoutErr  *domain.TimeoutError
		provErr     *domain.ProvisioningError
		regErr      *domain.RegistryWriteError
	)
	switch {
	case errors.As(err, &identityErr), errors.As(err, &missingErr):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &orderErr), errors.As(err, &trErr), errors.As(err, &conflictErr):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &timeoutErr):
		return huma.Error504GatewayTimeout(err.Error())
	case errors.As(err, &provErr):
		return huma.Error502BadGateway(err.Error())
	case errors.As(err, &regErr):
		return huma.Error500InternalServerError(regErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
