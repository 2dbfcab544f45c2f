package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	repo "marketplace/internal/repository"

	"github.com/rs/zerolog"
)

// エラーの種類。HTTPError.Kind に入り、errors.Is で判定できる
var (
	//400 入力不正
	ErrValidation = errors.New("validation error")
	//401 認証失敗
	ErrUnauthorized = errors.New("unauthorized")
	//403 権限
	ErrForbidden = errors.New("forbidden")
	//404
	ErrNotFound = errors.New("not found")
	//409 状態競合
	ErrConflict = errors.New("conflict")
	//400 在庫不足
	ErrInsufficientStock = errors.New("insufficient stock")
	//502 決済ゲートウェイ失敗（再試行可）
	ErrUpstream = errors.New("upstream failure")
	//500
	ErrInternal = errors.New("internal error")

	ErrEmptyCart        = fmt.Errorf("empty cart: %w", ErrValidation)
	ErrInvalidProduct   = fmt.Errorf("invalid product: %w", ErrValidation)
	ErrInvalidSignature = fmt.Errorf("invalid signature: %w", ErrValidation)
)

// handlerがそのままレスポンスにできるエラー
type HTTPError struct {
	Status  int
	Message string
	Kind    error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Kind
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Kind:    kindOf(status),
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func newError(kind error, message string) error {
	return &HTTPError{
		Status:  statusOf(kind),
		Message: message,
		Kind:    kind,
	}
}

func statusOf(kind error) int {
	switch {
	case errors.Is(kind, ErrValidation), errors.Is(kind, ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(kind, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadGateway:
		return ErrUpstream
	default:
		return ErrInternal
	}
}

// 想定外のエラーはログに残して中身は返さない
func internalError(ctx context.Context, err error, msg string) error {
	zerolog.Ctx(ctx).Error().Err(err).Msg(msg)
	return newError(ErrInternal, "internal error")
}

// repositoryのエラーをusecaseのエラーへ
func fromRepo(ctx context.Context, err error, what string) error {
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newError(ErrNotFound, what+" not found")
	case errors.Is(err, repo.ErrConflict):
		return newError(ErrConflict, what+" already exists")
	default:
		return internalError(ctx, err, what+": db error")
	}
}

// Txの外に出てきたエラー（commit失敗など）をそろえる
func txError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return internalError(ctx, err, "transaction failed")
}
