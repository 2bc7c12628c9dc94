package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "cinepay/internal/errors"
)

// rawResponse is a fully read HTTP response
type rawResponse struct {
	status int
	body   []byte
}

func (r rawResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs one JSON request. Transport failures, including timeouts,
// come back as *errors.NetworkError; HTTP status handling is left to the caller.
func send(ctx context.Context, client *http.Client, op, method, url string, payload any, decorate func(*http.Request)) (rawResponse, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return rawResponse{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return rawResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return rawResponse{}, &apperrors.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return rawResponse{}, &apperrors.NetworkError{Op: op, Err: err}
	}

	return rawResponse{status: resp.StatusCode, body: data}, nil
}

func decode(op string, data []byte, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
