package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// checkout用。ユーザー単位（未認証ならIP）で1分あたりperMin回まで
func CheckoutRateLimiter(perMin int) echo.MiddlewareFunc {
	if perMin <= 0 {
		perMin = 10
	}

	config := echomw.RateLimiterConfig{
		Skipper: echomw.DefaultSkipper,
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(
			echomw.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(perMin) / 60),
				Burst:     perMin,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if uid, ok := c.Get(CtxUserIDKey).(int64); ok {
				return "user:" + strconv.FormatInt(uid, 10), nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return failJSON(c, http.StatusForbidden, "forbidden")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return failJSON(c, http.StatusTooManyRequests, "too many checkout attempts, try again later")
		},
	}

	return echomw.RateLimiterWithConfig(config)
}
