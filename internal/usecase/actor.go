package usecase

import "marketplace/internal/domain/model"

// リクエストしてきたユーザー（JWTから）
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) Elevated() bool {
	return a.Role.Elevated()
}

// 本人か、ADMIN/MANAGERか
func (a Actor) CanAccessUser(userID int64) bool {
	return a.UserID == userID || a.Elevated()
}

func requireElevated(a Actor) error {
	if !a.Elevated() {
		return newError(ErrForbidden, "forbidden")
	}
	return nil
}
