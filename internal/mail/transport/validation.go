package transport

import (
	"recruitment_backend/internal/mail/domain"
	"recruitment_backend/platform/validator"
)

// RegisterValidations adds the provider_type tag.
func RegisterValidations(val *validator.Validator) error {
	allowed := make([]string, 0, len(domain.ProviderTypes))
	for _, p := range domain.ProviderTypes {
		allowed = append(allowed, string(p))
	}
	return val.RegisterEnum("provider_type", allowed...)
}
