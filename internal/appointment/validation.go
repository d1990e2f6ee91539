package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

// BookingRequest is the booking input as received from a caller. Fields are
// raw strings; BookAppointment validates and parses them before touching the ledger.
type BookingRequest struct {
	SpecialistID string `json:"specialist_id" validate:"required,id"`
	ClinicID     string `json:"clinic_id" validate:"required,id"`
	PatientID    string `json:"patient_id" validate:"required,id"`
	Date         string `json:"date" validate:"required,date"`
	Time         string `json:"time" validate:"required,hhmm"`
	Reason       string `json:"reason" validate:"required,max=1000"`
	ServiceType  string `json:"service_type,omitempty" validate:"max=100"`
	Notes        string `json:"notes,omitempty" validate:"max=2000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// ids accept whatever uuid.Parse does, so body and path ids agree on case
	_ = v.RegisterValidation("id", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

type parsedBooking struct {
	specialistID uuid.UUID
	clinicID     uuid.UUID
	patientID    uuid.UUID
	date         schedule.Date
	time         schedule.TimeOfDay
	reason       string
	serviceType  *string
	notes        *string
}

func sanitize(req BookingRequest) BookingRequest {
	req.SpecialistID = strings.TrimSpace(req.SpecialistID)
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Reason = strings.TrimSpace(req.Reason)
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.Notes = strings.TrimSpace(req.Notes)
	return req
}

// parseBooking checks the request shape and reports the first offending field
// in declaration order. today is the clinic's current calendar day.
func parseBooking(req BookingRequest, today schedule.Date) (*parsedBooking, error) {
	req = sanitize(req)

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, invalid(verrs[0].Field(), describe(verrs[0]))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	tod, err := schedule.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if date.Before(today) {
		return nil, invalid("date", "must not be in the past")
	}

	return &parsedBooking{
		specialistID: uuid.MustParse(req.SpecialistID),
		clinicID:     uuid.MustParse(req.ClinicID),
		patientID:    uuid.MustParse(req.PatientID),
		date:         date,
		time:         tod,
		reason:       req.Reason,
		serviceType:  optional(req.ServiceType),
		notes:        optional(req.Notes),
	}, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "id":
		return "must be a valid UUID"
	case "date":
		return "must be a calendar date formatted YYYY-MM-DD"
	case "hhmm":
		return "must be a time of day formatted HH:MM"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
