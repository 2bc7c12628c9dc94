package external

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskCardNumber(t *testing.T) {
	assert.Equal(t, "4111****1111", MaskCardNumber("4111111111111111"))
	assert.Equal(t, "4111****1111", MaskCardNumber("4111 1111 1111 1111"))
	assert.Equal(t, "****", MaskCardNumber("4111"))
	assert.Equal(t, "****", MaskCardNumber(""))

	// non-ASCII digits are dropped, never sliced mid-rune
	assert.Equal(t, "4111****1111", MaskCardNumber("٤4111 1111 1111 1111٤"))
	assert.Equal(t, "****", MaskCardNumber("١٢٣٤٥٦٧٨٩٠١٢٣٤٥٦"))
}

func TestCardNeverRendersPAN(t *testing.T) {
	card := Card{Number: "4111 1111 1111 1111", Expiry: "12/28", CVV: "987", Name: "John Doe"}

	for _, out := range []string{
		fmt.Sprint(card),
		fmt.Sprintf("%v", card),
		fmt.Sprintf("%+v", card),
		fmt.Sprintf("%#v", card),
		card.String(),
	} {
		assert.NotContains(t, out, "4111111111111111")
		assert.NotContains(t, out, "1111 1111")
		assert.NotContains(t, out, "987")
		assert.Contains(t, out, "4111****1111")
	}

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	log.Info("paying", "card", card)
	assert.Contains(t, buf.String(), "4111****1111")
	assert.NotContains(t, buf.String(), "4111111111111111")
	assert.NotContains(t, buf.String(), "987")
}

func TestCardParts(t *testing.T) {
	card := Card{Number: "4111-1111-1111-1111", Expiry: "12/28"}
	assert.Equal(t, "4111111111111111", card.Digits())

	month, year, ok := card.ExpiryParts()
	assert.True(t, ok)
	assert.Equal(t, "12", month)
	assert.Equal(t, "2028", year)

	_, _, ok = Card{Expiry: "1228"}.ExpiryParts()
	assert.False(t, ok)
}
