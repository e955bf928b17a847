package binder

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
)

var (
	dateRE = regexp.MustCompile(`^\d{4}-(0[0-9]|1[0-2])-(0[0-9]|1[0-9]|2[0-9]|3[0-1])$`)
)

// dateValidator accepts YYYY-MM-DD or the empty string, which clears a
// value. Add `ne=` to the tag when the field is required.
func dateValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return dateRE.MatchString(value)
}

// variantValidator accepts the name of an asset variant.
func variantValidator(fl validator.FieldLevel) bool {
	return models.Variant(fl.Field().String()).Valid()
}
