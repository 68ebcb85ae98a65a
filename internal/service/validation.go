package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/dojaang-api/internal/models"
)

// registerDomainValidations installs the custom tags used by request DTOs.
func registerDomainValidations(v *validator.Validate) *validator.Validate {
	if v == nil {
		v = validator.New()
	}
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		_, err := models.ParseAttendanceStatus(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return models.Weekday(fl.Field().Int()).Valid()
	})
	return v
}
