package checkout

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/external"
)

var (
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)
	expiryPattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return digitsPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("expiry", func(fl validator.FieldLevel) bool {
		return expiryPattern.MatchString(fl.Field().String())
	})
	return v
}

// paymentForm is the normalized payment form; fields are checked in order
type paymentForm struct {
	CardNumber string `validate:"digits,min=16"`
	Expiry     string `validate:"expiry"`
	CVV        string `validate:"min=3"`
	CardName   string `validate:"min=3"`
	Email      string `validate:"required,email"`
}

type contactForm struct {
	Email string `validate:"required,email"`
}

var fieldMessages = map[string]struct{ field, message string }{
	"CardNumber": {"card_number", "invalid card number"},
	"Expiry":     {"expiry", "invalid expiry date, expected MM/YY"},
	"CVV":        {"cvv", "invalid CVV"},
	"CardName":   {"card_name", "cardholder name is required"},
	"Email":      {"email", "invalid email address"},
}

// ValidateCard checks the payment form locally. It returns
// errors.ValidationErrors with one entry per failed field, in form order.
func ValidateCard(card external.Card, email string) error {
	form := paymentForm{
		CardNumber: strings.Join(strings.Fields(card.Number), ""),
		Expiry:     card.Expiry,
		CVV:        card.CVV,
		CardName:   strings.TrimSpace(card.Name),
		Email:      email,
	}
	return translate(validate.Struct(form))
}

// ValidateEmail checks the contact e-mail collected before reserving
func ValidateEmail(email string) error {
	return translate(validate.Struct(contactForm{Email: strings.TrimSpace(email)}))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(apperrors.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.StructField()]
		if !ok {
			msg.field, msg.message = fe.Field(), "is invalid"
		}
		out = append(out, &apperrors.ValidationError{Field: msg.field, Message: msg.message})
	}
	return out
}
