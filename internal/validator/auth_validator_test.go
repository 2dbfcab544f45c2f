package validator

import (
	"context"
	"strings"
	"testing"

	"marketplace/internal/usecase"

	"github.com/stretchr/testify/require"
)

func TestValidateRegister(t *testing.T) {
	v := NewAuthValidator()
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		ok       bool
	}{
		{"ok", "a@example.com", "password1", true},
		{"empty email", "", "password1", false},
		{"bad email", "not-an-email", "password1", false},
		{"short password", "a@example.com", "short", false},
		{"long password", "a@example.com", strings.Repeat("x", 73), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRegister(ctx, tt.email, tt.password)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, usecase.ErrValidation)
		})
	}
}

func TestValidateLogin(t *testing.T) {
	v := NewAuthValidator()

	require.NoError(t, v.ValidateLogin(context.Background(), "a@example.com", "x"))
	require.ErrorIs(t, v.ValidateLogin(context.Background(), "a@example.com", ""), usecase.ErrValidation)
}
