package external

import (
	"log/slog"
	"strings"
)

// Card holds raw card fields as typed by the customer. The full number only
// ever leaves the process inside a request body to the processor; every
// textual rendering of a Card is masked.
type Card struct {
	Number string
	Expiry string // MM/YY
	CVV    string
	Name   string
}

// Digits returns the card number without spaces or dashes
func (c Card) Digits() string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, c.Number)
}

// Masked returns the first-4/last-4 form, e.g. 4111****1111
func (c Card) Masked() string {
	return MaskCardNumber(c.Number)
}

// ExpiryParts splits MM/YY into month and four-digit year
func (c Card) ExpiryParts() (month, year string, ok bool) {
	parts := strings.Split(c.Expiry, "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return "", "", false
	}
	return parts[0], "20" + parts[1], true
}

func (c Card) String() string {
	return "card " + c.Masked()
}

func (c Card) GoString() string {
	return "external.Card{" + c.Masked() + "}"
}

// LogValue keeps the PAN and CVV out of structured logs
func (c Card) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("number", c.Masked()),
		slog.String("name", c.Name),
	)
}

// MaskCardNumber keeps the first and last four digits of a card number
func MaskCardNumber(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) < 8 {
		return "****"
	}
	return digits[:4] + "****" + digits[len(digits)-4:]
}
