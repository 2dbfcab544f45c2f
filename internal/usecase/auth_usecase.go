package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 15 * time.Minute

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, email string, password string) error
	ValidateLogin(ctx context.Context, email string, password string) error
}

type UserDTO struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	TokenVersion  int    `json:"token_version"`
	IsActive      bool   `json:"is_active"`
	CurrentCartID *int64 `json:"current_cart_id,omitempty"`
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRegisterResponse struct {
	User UserDTO `json:"user"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

type AuthUsecase struct {
	jwtSecret []byte
	tx        repo.TransactionManager
	validator AuthValidator
}

func NewAuthUsecase(jwtSecret string, tx repo.TransactionManager, validator AuthValidator) *AuthUsecase {
	return &AuthUsecase{
		jwtSecret: []byte(jwtSecret),
		tx:        tx,
		validator: validator,
	}
}

// 登録と同時に最初のカートを作る
func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (*AuthRegisterResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, req.Email, req.Password); err != nil {
		return nil, err
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, internalError(ctx, err, "hash password")
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(pwHash),
		Role:         model.RoleUser,
		TokenVersion: 0,
		IsActive:     true,
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//email重複はunique制約でも弾く
		if err := r.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return newError(ErrConflict, "email already used")
			}
			return fromRepo(ctx, err, "user")
		}
		cart, err := provisionCart(ctx, r, user.ID)
		if err != nil {
			return err
		}
		user.CurrentCartID = &cart.ID
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}

	zerolog.Ctx(ctx).Info().Int64("user_id", user.ID).Msg("user registered")
	return &AuthRegisterResponse{User: toUserDTO(user)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest) (*AuthLoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return nil, err
	}

	var user *model.User
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		found, err := r.Users().FindByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return newError(ErrUnauthorized, "invalid email or password")
			}
			return fromRepo(ctx, err, "user")
		}

		//停止ユーザーはログイン不可
		if !found.IsActive {
			return newError(ErrForbidden, "user is disabled")
		}

		//パスワード照合（bcrypt）
		if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(req.Password)); err != nil {
			return newError(ErrUnauthorized, "invalid email or password")
		}

		//last_login更新
		now := time.Now()
		found.LastLoginAt = &now
		if err := r.Users().Update(ctx, found); err != nil {
			return fromRepo(ctx, err, "user")
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}

	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, internalError(ctx, err, "sign access token")
	}

	return &AuthLoginResponse{
		User: toUserDTO(user),
		Token: JwtAccessTokenDTO{
			AccessToken:  accessToken,
			ExpiresIn:    expiresIn,
			TokenVersion: user.TokenVersion,
		},
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (*UserDTO, error) {
	if userID <= 0 {
		return nil, newError(ErrUnauthorized, "unauthorized")
	}

	var dto UserDTO
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		user, err := r.Users().FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return newError(ErrUnauthorized, "unauthorized")
			}
			return fromRepo(ctx, err, "user")
		}
		if !user.IsActive {
			return newError(ErrForbidden, "user is disabled")
		}
		dto = toUserDTO(user)
		return nil
	})
	if err != nil {
		return nil, txError(ctx, err)
	}
	return &dto, nil
}

// jwt発行
func (u *AuthUsecase) issueAccessToken(user *model.User) (string, int, error) {
	now := time.Now()
	exp := now.Add(accessTokenTTL)

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"tv":   user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := t.SignedString(u.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int(accessTokenTTL.Seconds()), nil
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		Role:          string(u.Role),
		TokenVersion:  u.TokenVersion,
		IsActive:      u.IsActive,
		CurrentCartID: u.CurrentCartID,
	}
}
