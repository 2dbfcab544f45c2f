package handler

import (
	"net/http"
	"strconv"

	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// 成功 {status:"success", data}
type SuccessResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// 失敗 {status:"fail"|"error", message}。4xxはfail、5xxはerror
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(c echo.Context, code int, data any) error {
	return c.JSON(code, SuccessResponse{Status: "success", Data: data})
}

func fail(c echo.Context, code int, msg string) error {
	status := "fail"
	if code >= http.StatusInternalServerError {
		status = "error"
	}
	return c.JSON(code, ErrorResponse{Status: status, Message: msg})
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	log := zerolog.Ctx(c.Request().Context())

	if he, ok := usecase.AsHTTPError(err); ok {
		if he.Status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("request failed")
		}
		return fail(c, he.Status, he.Message)
	}

	//500
	log.Error().Err(err).Msg("unhandled error")
	return fail(c, http.StatusInternalServerError, "internal error")
}

func actorFrom(c echo.Context) (usecase.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return usecase.Actor{}, usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func queryID(c echo.Context, name string) (*int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, usecase.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}
