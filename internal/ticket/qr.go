package ticket

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the edge length of ticket QR images in pixels
const DefaultSize = 256

// URL returns the public ticket page for a reservation
func URL(baseURL, reservationID string) string {
	return strings.TrimRight(baseURL, "/") + "/ticket/" + url.PathEscape(reservationID)
}

// PNG renders content as a QR code PNG
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return buf.Bytes(), nil
}

// Base64 renders the ticket QR for a reservation as base64 PNG, the same
// shape the booking backend returns in qr_base64
func Base64(baseURL, reservationID string) (string, error) {
	data, err := PNG(URL(baseURL, reservationID), DefaultSize)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode turns a qr_base64 value back into PNG bytes
func Decode(qrBase64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(qrBase64, "data:image/png;base64,"))
	if err != nil {
		return nil, fmt.Errorf("invalid qr_base64: %w", err)
	}
	return data, nil
}
