package handler

import (
	"context"
	"net/http"

	"backoffice/internal/numbering"
	"backoffice/internal/usecase"

	"github.com/labstack/echo/v4"
)

type SequenceService interface {
	Issue(ctx context.Context, actorID string, docType string) (usecase.IssueOutput, error)
	Peek(ctx context.Context, docType string) (usecase.PeekOutput, error)
	Policies() []numbering.Policy
}

// /sequences 文書番号の払い出し
type SequenceHandler struct {
	uc SequenceService
}

// DI
func NewSequenceHandler(uc SequenceService) *SequenceHandler {
	return &SequenceHandler{uc: uc}
}

func (h *SequenceHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/sequences/policies", h.policies)
	g.GET("/sequences/:doc_type", h.peek)
	g.POST("/sequences/:doc_type/next", h.next)
}

func (h *SequenceHandler) next(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Issue(c.Request().Context(), actor, c.Param("doc_type"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *SequenceHandler) peek(c echo.Context) error {
	out, err := h.uc.Peek(c.Request().Context(), c.Param("doc_type"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SequenceHandler) policies(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"items": h.uc.Policies()})
}
