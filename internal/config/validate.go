package config

import "github.com/go-playground/validator/v10"

var validate = validator.New()

func init() {
	validate.RegisterValidation("tiers_desc", validateTierOrder)
}

// validateTierOrder requires tiers sorted by strictly decreasing Min.
func validateTierOrder(fl validator.FieldLevel) bool {
	tiers, ok := fl.Field().Interface().([]Tier)
	if !ok {
		return false
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Min >= tiers[i-1].Min {
			return false
		}
	}
	return true
}
