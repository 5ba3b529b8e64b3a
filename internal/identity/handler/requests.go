package handler

import (
	"encoding/json"
	"io"
	"strings"

	dErrors "linkage/pkg/domain-errors"
)

// IdentifyRequest is the normalized identify payload. Empty string means the
// field was absent.
type IdentifyRequest struct {
	Email       string
	PhoneNumber string
}

// ParseIdentifyRequest decodes and validates an identify body. Checkout
// clients send phoneNumber as either a JSON string or a bare number, so the
// body is decoded generically and coerced field by field; numbers keep their
// literal decimal form via json.Number. Returns CodeBadRequest on any
// violation.
func ParseIdentifyRequest(body io.Reader) (IdentifyRequest, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return IdentifyRequest{}, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object")
	}

	payload, ok := raw.(map[string]any)
	if !ok {
		return IdentifyRequest{}, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object")
	}

	email, err := normalizeEmail(payload["email"])
	if err != nil {
		return IdentifyRequest{}, err
	}
	phone, err := normalizePhoneNumber(payload["phoneNumber"])
	if err != nil {
		return IdentifyRequest{}, err
	}

	if email == "" && phone == "" {
		return IdentifyRequest{}, dErrors.New(dErrors.CodeBadRequest, "Either email or phoneNumber must be provided")
	}

	return IdentifyRequest{Email: email, PhoneNumber: phone}, nil
}

func normalizeEmail(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", dErrors.New(dErrors.CodeBadRequest, "email must be a string")
	}
	return strings.TrimSpace(s), nil
}

func normalizePhoneNumber(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case json.Number:
		return v.String(), nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "phoneNumber must be a string or number")
	}
}
