package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/domain/model"
	"backoffice/internal/usecase"

	"github.com/labstack/echo/v4"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type LedgerService interface {
	Receive(ctx context.Context, in usecase.MovementInput) (usecase.MovementResult, error)
	Dispatch(ctx context.Context, in usecase.MovementInput) (usecase.MovementResult, error)
	Adjust(ctx context.Context, in usecase.AdjustInput) (usecase.MovementResult, error)
	GetEntry(ctx context.Context, id int64) (model.LedgerEntry, error)
	ListEntries(ctx context.Context, in usecase.ListEntriesInput) (usecase.EntryListOutput, error)
	Reconcile(ctx context.Context, itemID int64) (usecase.ReconcileOutput, error)
}

type MovementLineRequest struct {
	Item     int64 `json:"item" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// 入庫/出庫の入力
type MovementRequest struct {
	Items     []MovementLineRequest `json:"items" validate:"required,min=1,dive"`
	Reference string                `json:"reference" validate:"max=100"`
	Notes     string                `json:"notes" validate:"max=1000"`
}

type AdjustLineRequest struct {
	Item  int64 `json:"item" validate:"required,gt=0"`
	Delta int64 `json:"delta" validate:"required"`
}

// 棚卸調整の入力（deltaは符号付き）
type AdjustRequest struct {
	Items     []AdjustLineRequest `json:"items" validate:"required,min=1,dive"`
	Reason    string              `json:"reason" validate:"required,max=1000"`
	Reference string              `json:"reference" validate:"max=100"`
}

type MovementResponse struct {
	Message string            `json:"message"`
	Entry   model.LedgerEntry `json:"entry"`
}

// /inventory の在庫移動と台帳照会
type InventoryHandler struct {
	uc LedgerService
}

// DI
func NewInventoryHandler(uc LedgerService) *InventoryHandler {
	return &InventoryHandler{uc: uc}
}

// adminOnlyは調整（ADMIN限定）に掛ける
func (h *InventoryHandler) RegisterRoutes(g *echo.Group, adminOnly echo.MiddlewareFunc) {
	g.POST("/inventory/receive", h.receive)
	g.POST("/inventory/dispatch", h.dispatch)
	g.POST("/inventory/adjust", h.adjust, adminOnly)
	g.GET("/inventory/transactions", h.listTransactions)
	g.GET("/inventory/transactions/:id", h.getTransaction)
	g.GET("/inventory/items/:id/reconcile", h.reconcile)
}

func (h *InventoryHandler) receive(c echo.Context) error {
	return h.movement(c, h.uc.Receive, "stock received")
}

func (h *InventoryHandler) dispatch(c echo.Context) error {
	return h.movement(c, h.uc.Dispatch, "stock dispatched")
}

func (h *InventoryHandler) movement(
	c echo.Context,
	post func(context.Context, usecase.MovementInput) (usecase.MovementResult, error),
	message string,
) error {
	actor, err := actorID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req MovementRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	lines := make([]usecase.MovementLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, usecase.MovementLine{ItemID: it.Item, Quantity: it.Quantity})
	}

	res, err := post(c.Request().Context(), usecase.MovementInput{
		ActorID:        actor,
		Lines:          lines,
		Reference:      req.Reference,
		Notes:          req.Notes,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeMovement(c, res, message)
}

func (h *InventoryHandler) adjust(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req AdjustRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	lines := make([]usecase.AdjustmentLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, usecase.AdjustmentLine{ItemID: it.Item, Delta: it.Delta})
	}

	res, err := h.uc.Adjust(c.Request().Context(), usecase.AdjustInput{
		ActorID:        actor,
		Lines:          lines,
		Reason:         req.Reason,
		Reference:      req.Reference,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeMovement(c, res, "stock adjusted")
}

// 同じ冪等キーの再送は200で既存エントリを返す
func writeMovement(c echo.Context, res usecase.MovementResult, message string) error {
	if res.Replayed {
		return c.JSON(http.StatusOK, MovementResponse{Message: "already processed", Entry: res.Entry})
	}
	return c.JSON(http.StatusCreated, MovementResponse{Message: message, Entry: res.Entry})
}

func (h *InventoryHandler) listTransactions(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return writeError(c, err)
	}

	in := usecase.ListEntriesInput{
		Page:      page,
		Limit:     limit,
		Type:      c.QueryParam("type"),
		ActorID:   c.QueryParam("actor_id"),
		Reference: c.QueryParam("reference"),
	}

	if v := c.QueryParam("item_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid item_id"})
		}
		in.ItemID = &id
	}
	if in.From, err = timeParam(c, "from"); err != nil {
		return writeError(c, err)
	}
	if in.To, err = timeParam(c, "to"); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListEntries(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *InventoryHandler) getTransaction(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	e, err := h.uc.GetEntry(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *InventoryHandler) reconcile(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Reconcile(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// page（default 1）/ limit（default 20）
func pageParams(c echo.Context) (int, int, error) {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid page")
		}
		page = p
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = l
	}
	return page, limit, nil
}

// RFC3339 か YYYY-MM-DD
func timeParam(c echo.Context, name string) (*time.Time, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	return nil, usecase.NewHTTPError(http.StatusBadRequest, "invalid "+name)
}
