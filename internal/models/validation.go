package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultEmailDomain is the institutional domain accepted for accounts.
const DefaultEmailDomain = "unal.edu.co"

const (
	MinDescriptionLength = 10
	MaxNameLength        = 200
	MaxDescriptionLength = 2000
)

// Validation sentinel errors
var (
	ErrFieldRequired       = errors.New("all fields are required")
	ErrFieldHasSpaces      = errors.New("fields must not contain spaces")
	ErrInvalidEmail        = errors.New("invalid institutional email")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrCodeRequired        = errors.New("verification code is required")
	ErrInvalidCategory     = errors.New("select a valid type of violence")
	ErrDescriptionTooShort = fmt.Errorf("description must be at least %d characters", MinDescriptionLength)
	ErrDescriptionTooLong  = fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
	ErrNameTooLong         = fmt.Errorf("name must be at most %d characters", MaxNameLength)
	ErrInvalidAge          = errors.New("age must be a number greater than zero")
	ErrDateRangeInverted   = errors.New("start date must not be after end date")
	ErrUnknownCodeType     = errors.New("unknown verification code type")
	ErrMissingSessionEmail = errors.New("no signed-in user")
)

// ValidationError is a client-side field check failure. It is shown to the
// user and never sent to the backend.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure.
func (e *ValidationError) Message() string {
	msg := e.Err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

// ValidationErrors collects every failing field of a form.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// Fields maps field name to message, for inline rendering.
func (errs ValidationErrors) Fields() map[string]string {
	m := make(map[string]string, len(errs))
	for _, e := range errs {
		if _, ok := m[e.Field]; !ok {
			m[e.Field] = e.Message()
		}
	}
	return m
}

func (errs ValidationErrors) orNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailPattern(domain string) *regexp.Regexp {
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return regexp.MustCompile(`^[^\s@]+@` + regexp.QuoteMeta(strings.ToLower(domain)) + `$`)
}

var defaultEmailPattern = emailPattern(DefaultEmailDomain)

// ValidateInstitutionalEmail checks a normalized email against the
// institutional domain. An empty domain means DefaultEmailDomain.
func ValidateInstitutionalEmail(email, domain string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return invalid("email", ErrFieldRequired)
	}
	re := defaultEmailPattern
	if domain != "" && !strings.EqualFold(domain, DefaultEmailDomain) {
		re = emailPattern(domain)
	}
	if !re.MatchString(email) {
		return invalid("email", ErrInvalidEmail)
	}
	return nil
}

// LoginRequest is the sign-in form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims both fields and lowercases the email.
func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

// Validate checks a normalized login request.
func (r *LoginRequest) Validate(domain string) error {
	if r.Email == "" || r.Password == "" {
		return invalid("", ErrFieldRequired)
	}
	if strings.ContainsAny(r.Email, " \t") || strings.ContainsAny(r.Password, " \t") {
		return invalid("", ErrFieldHasSpaces)
	}
	return ValidateInstitutionalEmail(r.Email, domain)
}

// RegisterRequest is the account creation form.
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

// Validate returns every failing field as ValidationErrors.
func (r *RegisterRequest) Validate(domain string) error {
	var errs ValidationErrors
	if r.Name == "" {
		errs = append(errs, invalid("name", ErrFieldRequired))
	} else if len(r.Name) > MaxNameLength {
		errs = append(errs, invalid("name", ErrNameTooLong))
	}
	if err := ValidateInstitutionalEmail(r.Email, domain); err != nil {
		errs = append(errs, err.(*ValidationError))
	}
	if r.Password == "" {
		errs = append(errs, invalid("password", ErrFieldRequired))
	} else if strings.ContainsAny(r.Password, " \t") {
		errs = append(errs, invalid("password", ErrFieldHasSpaces))
	} else if r.Password != r.ConfirmPassword {
		errs = append(errs, invalid("confirm_password", ErrPasswordMismatch))
	}
	return errs.orNil()
}

// PasswordResetRequest is the second step of the forgot-password flow.
type PasswordResetRequest struct {
	Email           string `json:"email"`
	Code            string `json:"-"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
}

func (r *PasswordResetRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *PasswordResetRequest) Validate(domain string) error {
	var errs ValidationErrors
	if err := ValidateInstitutionalEmail(r.Email, domain); err != nil {
		errs = append(errs, err.(*ValidationError))
	}
	if r.Code == "" {
		errs = append(errs, invalid("code", ErrCodeRequired))
	}
	if r.Password == "" {
		errs = append(errs, invalid("password", ErrFieldRequired))
	} else if r.Password != r.ConfirmPassword {
		errs = append(errs, invalid("confirm_password", ErrPasswordMismatch))
	}
	return errs.orNil()
}

// CodeType distinguishes the flows a verification code belongs to.
type CodeType string

const (
	CodeRegister CodeType = "register"
	CodeForgot   CodeType = "forgot"
)

func (t CodeType) Valid() bool { return t == CodeRegister || t == CodeForgot }

// VerifyCodeRequest is the code confirmation step.
type VerifyCodeRequest struct {
	Email string   `json:"email"`
	Code  string   `json:"code"`
	Type  CodeType `json:"type"`
}

func (r *VerifyCodeRequest) Validate(domain string) error {
	if err := ValidateInstitutionalEmail(r.Email, domain); err != nil {
		return err
	}
	if strings.TrimSpace(r.Code) == "" {
		return invalid("code", ErrCodeRequired)
	}
	if !r.Type.Valid() {
		return invalid("type", ErrUnknownCodeType)
	}
	return nil
}

// Validate checks the two editable fields of a report.
func (e *ReportEdit) Validate() error {
	var errs ValidationErrors
	if !IsViolenceType(e.Category) {
		errs = append(errs, invalid("category", ErrInvalidCategory))
	}
	desc := strings.TrimSpace(e.Description)
	switch {
	case len([]rune(desc)) < MinDescriptionLength:
		errs = append(errs, invalid("description", ErrDescriptionTooShort))
	case len([]rune(desc)) > MaxDescriptionLength:
		errs = append(errs, invalid("description", ErrDescriptionTooLong))
	}
	return errs.orNil()
}

// ValidateAge rejects non-positive ages.
func ValidateAge(age int) error {
	if age <= 0 {
		return invalid("age", ErrInvalidAge)
	}
	return nil
}
