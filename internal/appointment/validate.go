package appointment

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

var (
	clockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\s\-\(\)]{10,20}$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

type CreateInput struct {
	StaffID     int64   `json:"staff_id" validate:"required,gt=0"`
	ServiceID   int64   `json:"service_id" validate:"required,gt=0"`
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string  `json:"start_time" validate:"required,clock"`
	EndTime     string  `json:"end_time" validate:"required,clock"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,phone"`
	Status      *Status `json:"status"`
	// UserID lets staff book on behalf of a registered customer.
	UserID *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Status    *Status `json:"status"`
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *string `json:"start_time" validate:"omitempty,clock"`
	EndTime   *string `json:"end_time" validate:"omitempty,clock"`
}

func (in UpdateInput) changesTime() bool {
	return in.Date != nil || in.StartTime != nil || in.EndTime != nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return v
}

// ValidPhone accepts 10-15 digits written with an optional leading +, spaces,
// dashes and parentheses.
func ValidPhone(phone string) bool {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < 10 || len(digits) > 15 {
		return false
	}
	return phonePattern.MatchString(phone)
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "input", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: tagMessage(fe.Tag())})
	}
	return out
}

func tagMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be a positive id"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "clock":
		return "must be a time in HH:MM format (e.g. 10:00)"
	case "phone":
		return "must have 10-15 digits and only contain digits, spaces, dashes, parentheses or a leading +"
	default:
		return "is invalid"
	}
}

type draft struct {
	date   time.Time
	start  time.Time
	end    time.Time
	status Status
	phone  *string
}

func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// validateCreate checks a booking request. anonymous is true when the
// appointment will have no owning user, in which case a phone is mandatory.
func validateCreate(in CreateInput, anonymous bool, now time.Time, loc *time.Location) (draft, error) {
	in.PhoneNumber = normalizePhone(in.PhoneNumber)

	var fields []FieldError
	if err := validate.Struct(in); err != nil {
		fields = fieldErrors(err)
	}
	if anonymous && in.PhoneNumber == nil {
		fields = append(fields, FieldError{Field: "phone_number", Message: "is required for guest booking"})
	}
	if len(fields) > 0 {
		return draft{}, &ValidationError{Fields: fields}
	}

	d := draft{status: StatusPending, phone: in.PhoneNumber}
	if in.Status != nil {
		if *in.Status != StatusPending && *in.Status != StatusConfirmed {
			return draft{}, invalid("status", "initial status must be pending or confirmed")
		}
		d.status = *in.Status
	}

	var err error
	if d.date, err = time.ParseInLocation(dateLayout, in.Date, loc); err != nil {
		return draft{}, invalid("date", tagMessage("datetime"))
	}
	d.start = combine(d.date, in.StartTime, loc)
	d.end = combine(d.date, in.EndTime, loc)

	if err := checkInterval(d.date, d.start, d.end, now, loc); err != nil {
		return draft{}, err
	}
	return d, nil
}

func validateUpdate(in UpdateInput) error {
	var fields []FieldError
	if err := validate.Struct(in); err != nil {
		fields = fieldErrors(err)
	}
	if in.Status != nil && !in.Status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Message: "is not a valid status"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// checkInterval enforces start < end and that the booking is not in the past.
func checkInterval(date, start, end, now time.Time, loc *time.Location) error {
	if !start.Before(end) {
		return invalid("start_time", "must be earlier than end_time")
	}
	today := midnight(now.In(loc))
	if date.Before(today) {
		return invalid("date", "cannot be in the past")
	}
	if start.Before(now) {
		return invalid("start_time", "cannot be in the past")
	}
	return nil
}

// combine places an HH:MM wall-clock time on the calendar day of date.
// clock must already match clockPattern.
func combine(date time.Time, clock string, loc *time.Location) time.Time {
	t, _ := time.Parse(clockLayout, clock)
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, invalid("date", tagMessage("datetime"))
	}
	return d, nil
}

// ParseClock parses an HH:MM time on date.
func ParseClock(date time.Time, clock, field string, loc *time.Location) (time.Time, error) {
	if !clockPattern.MatchString(clock) {
		return time.Time{}, invalid(field, tagMessage("clock"))
	}
	return combine(date, clock, loc), nil
}
