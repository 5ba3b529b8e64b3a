package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "linkage/pkg/domain-errors"
)

func TestParseIdentifyRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      IdentifyRequest
		wantErr   string
		wantValid bool
	}{
		{
			name:      "email and string phone",
			body:      `{"email":"doc@example.com","phoneNumber":"123456"}`,
			want:      IdentifyRequest{Email: "doc@example.com", PhoneNumber: "123456"},
			wantValid: true,
		},
		{
			name:      "numeric phone keeps literal form",
			body:      `{"email":"doc@example.com","phoneNumber":123456}`,
			want:      IdentifyRequest{Email: "doc@example.com", PhoneNumber: "123456"},
			wantValid: true,
		},
		{
			name:      "email only",
			body:      `{"email":"doc@example.com"}`,
			want:      IdentifyRequest{Email: "doc@example.com"},
			wantValid: true,
		},
		{
			name:      "phone only",
			body:      `{"phoneNumber":"123456"}`,
			want:      IdentifyRequest{PhoneNumber: "123456"},
			wantValid: true,
		},
		{
			name:      "explicit nulls count as absent",
			body:      `{"email":null,"phoneNumber":"123456"}`,
			want:      IdentifyRequest{PhoneNumber: "123456"},
			wantValid: true,
		},
		{
			name:      "values are trimmed",
			body:      `{"email":"  doc@example.com ","phoneNumber":" 123456 "}`,
			want:      IdentifyRequest{Email: "doc@example.com", PhoneNumber: "123456"},
			wantValid: true,
		},
		{
			name:    "both absent",
			body:    `{}`,
			wantErr: "Either email or phoneNumber must be provided",
		},
		{
			name:    "both null",
			body:    `{"email":null,"phoneNumber":null}`,
			wantErr: "Either email or phoneNumber must be provided",
		},
		{
			name:    "non-string email",
			body:    `{"email":42,"phoneNumber":"123456"}`,
			wantErr: "email must be a string",
		},
		{
			name:    "boolean phone",
			body:    `{"email":"doc@example.com","phoneNumber":true}`,
			wantErr: "phoneNumber must be a string or number",
		},
		{
			name:    "array body",
			body:    `["doc@example.com"]`,
			wantErr: "request body must be a JSON object",
		},
		{
			name:    "malformed json",
			body:    `{"email":`,
			wantErr: "request body must be a JSON object",
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: "request body must be a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentifyRequest(strings.NewReader(tt.body))
			if tt.wantValid {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseIdentifyRequestLargeNumericPhone(t *testing.T) {
	// Large numbers must not be mangled by float64 round-tripping.
	got, err := ParseIdentifyRequest(strings.NewReader(`{"phoneNumber":919191919191919}`))
	require.NoError(t, err)
	assert.Equal(t, "919191919191919", got.PhoneNumber)
}
