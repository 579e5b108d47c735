package handler

import (
	"context"
	"net/http"
	"strconv"

	"backoffice/internal/domain/model"
	"backoffice/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ItemService interface {
	CreateItem(ctx context.Context, actorID string, in usecase.CreateItemInput) (model.InventoryItem, error)
	UpdateItem(ctx context.Context, actorID string, itemID int64, in usecase.ItemInput) (model.InventoryItem, error)
	DeleteItem(ctx context.Context, actorID string, itemID int64) error
	GetItem(ctx context.Context, itemID int64) (model.InventoryItem, error)
	ListItems(ctx context.Context, in usecase.ListItemsInput) (usecase.ItemListOutput, error)
	Valuation(ctx context.Context) (usecase.ValuationOutput, error)
	AuditTrail(ctx context.Context, itemID int64, limit, offset int) ([]model.AuditLog, error)
}

// 品目マスタの入力
type ItemRequest struct {
	SKU          string          `json:"sku" validate:"required,sku,max=64"`
	Name         string          `json:"name" validate:"required,max=255"`
	Category     string          `json:"category" validate:"max=100"`
	Unit         string          `json:"unit" validate:"max=20"`
	Location     string          `json:"location" validate:"max=100"`
	MinLevel     int64           `json:"min_level" validate:"gte=0"`
	ValuePerUnit decimal.Decimal `json:"value_per_unit" validate:"gte=0"`
}

type CreateItemRequest struct {
	ItemRequest
	OpeningQuantity int64 `json:"opening_quantity" validate:"gte=0"`
}

func (r ItemRequest) toInput() usecase.ItemInput {
	return usecase.ItemInput{
		SKU:          r.SKU,
		Name:         r.Name,
		Category:     r.Category,
		Unit:         r.Unit,
		Location:     r.Location,
		MinLevel:     r.MinLevel,
		ValuePerUnit: r.ValuePerUnit,
	}
}

// /inventory/items と /inventory/valuation
type ItemHandler struct {
	uc ItemService
}

// DI
func NewItemHandler(uc ItemService) *ItemHandler {
	return &ItemHandler{uc: uc}
}

func (h *ItemHandler) RegisterRoutes(g *echo.Group, adminOnly echo.MiddlewareFunc) {
	g.GET("/inventory/items", h.list)
	g.GET("/inventory/items/:id", h.detail)
	g.POST("/inventory/items", h.create, adminOnly)
	g.PUT("/inventory/items/:id", h.update, adminOnly)
	g.DELETE("/inventory/items/:id", h.delete, adminOnly)
	g.GET("/inventory/items/:id/audit-logs", h.auditTrail, adminOnly)
	g.GET("/inventory/valuation", h.valuation)
}

func (h *ItemHandler) list(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}

	lowStock := false
	if v := c.QueryParam("low_stock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid low_stock"})
		}
		lowStock = b
	}

	out, err := h.uc.ListItems(c.Request().Context(), usecase.ListItemsInput{
		Page:     page,
		Limit:    limit,
		Q:        c.QueryParam("q"),
		Category: c.QueryParam("category"),
		Location: c.QueryParam("location"),
		LowStock: lowStock,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ItemHandler) detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	item, err := h.uc.GetItem(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) create(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req CreateItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	item, err := h.uc.CreateItem(c.Request().Context(), actor, usecase.CreateItemInput{
		ItemInput:       req.toInput(),
		OpeningQuantity: req.OpeningQuantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *ItemHandler) update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	actor, err := actorID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req ItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	item, err := h.uc.UpdateItem(c.Request().Context(), actor, id, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	actor, err := actorID(c)
	if err != nil {
		return writeError(c, err)
	}

	if err := h.uc.DeleteItem(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *ItemHandler) valuation(c echo.Context) error {
	out, err := h.uc.Valuation(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// limit（default 50）/ offset（default 0）
func (h *ItemHandler) auditTrail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
	}
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
		}
	}

	logs, err := h.uc.AuditTrail(c.Request().Context(), id, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": logs})
}
