package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"backoffice/internal/middleware"
	repo "backoffice/internal/repository"
	"backoffice/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse は { message: string } の形
type SuccessResponse struct {
	Message string `json:"message"`
}

// 在庫不足（どの品目がいくつ足りないかを返す）
type InsufficientStockResponse struct {
	Error     string `json:"error"`
	ItemID    int64  `json:"item_id"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

type ItemNotFoundResponse struct {
	Error  string `json:"error"`
	ItemID int64  `json:"item_id"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	var ise *usecase.InsufficientStockError
	if errors.As(err, &ise) {
		return c.JSON(http.StatusBadRequest, InsufficientStockResponse{
			Error:     "insufficient stock",
			ItemID:    ise.ItemID,
			Available: ise.Available,
			Requested: ise.Requested,
		})
	}
	var nf *usecase.ItemNotFoundError
	if errors.As(err, &nf) {
		return c.JSON(http.StatusBadRequest, ItemNotFoundResponse{Error: nf.Error(), ItemID: nf.ItemID})
	}

	switch {
	case errors.Is(err, repo.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, repo.ErrDuplicateKey):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "already exists"})
	case errors.Is(err, repo.ErrStorageUnavailable):
		log.Warn().Err(err).Str("path", c.Path()).Msg("storage unavailable")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "timeout"})
	}

	//500
	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// bindAndValidate はJSONを読み込んでvalidateタグを検査する。
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(req); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) {
			msgs := make([]string, 0, len(ves))
			for _, fe := range ves {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
			return usecase.NewHTTPError(http.StatusBadRequest, "invalid body: "+strings.Join(msgs, ", "))
		}
		return usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func actorID(c echo.Context) (string, error) {
	id, ok := middleware.ActorID(c)
	if !ok {
		return "", usecase.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}
