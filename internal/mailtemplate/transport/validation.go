package transport

import (
	"recruitment_backend/internal/mailtemplate/domain"
	"recruitment_backend/platform/validator"
)

// RegisterValidations adds the mail_template_type and mail_template_status tags.
func RegisterValidations(val *validator.Validator) error {
	types := make([]string, 0, len(domain.Types))
	for _, t := range domain.Types {
		types = append(types, string(t))
	}
	if err := val.RegisterEnum("mail_template_type", types...); err != nil {
		return err
	}

	statuses := make([]string, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		statuses = append(statuses, string(s))
	}
	return val.RegisterEnum("mail_template_status", statuses...)
}
