package server

import (
	"backoffice/internal/config"
	"backoffice/internal/handler"
	"backoffice/internal/middleware"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Health    *handler.HealthHandler
	Inventory *handler.InventoryHandler
	Items     *handler.ItemHandler
	Sequences *handler.SequenceHandler
}

// /health以外はJWT必須。マスタ変更と調整はADMINのみ。
func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	h.Health.RegisterRoutes(e)

	api := e.Group("", middleware.AuthJWT(cfg))
	adminOnly := middleware.AdminRoleGuard()

	h.Inventory.RegisterRoutes(api, adminOnly)
	h.Items.RegisterRoutes(api, adminOnly)
	h.Sequences.RegisterRoutes(api)
}
