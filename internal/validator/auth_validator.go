package validator

import (
	"context"
	"regexp"
	"strings"

	"marketplace/internal/usecase"
)

// 簡易メール形式
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type authValidator struct{}

// Usecaseは interface を依存注入
func NewAuthValidator() usecase.AuthValidator {
	return &authValidator{}
}

// サインアップの入力を検証（email重複はDBのunique制約で弾く）
func (v *authValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" || password == "" {
		return usecase.NewHTTPError(400, "email and password are required")
	}

	if !emailRe.MatchString(email) {
		return usecase.NewHTTPError(400, "invalid email")
	}

	// パスワード最低文字数（MVP: 8）
	if len(password) < 8 {
		return usecase.NewHTTPError(400, "password must be at least 8 characters")
	}
	// bcryptは72byteまで
	if len(password) > 72 {
		return usecase.NewHTTPError(400, "password is too long")
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return usecase.NewHTTPError(400, "email and password are required")
	}
	if !emailRe.MatchString(email) {
		return usecase.NewHTTPError(400, "invalid email")
	}

	return nil
}
