package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/domain/model"
	repo "backoffice/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const openingStockReason = "opening stock"

type ItemUsecase struct {
	tx        repo.TransactionManager
	items     repo.InventoryRepository
	audits    repo.AuditLogRepository
	txTimeout time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// DI
func NewItemUsecase(
	tx repo.TransactionManager,
	items repo.InventoryRepository,
	audits repo.AuditLogRepository,
	txTimeout time.Duration,
	logger zerolog.Logger,
) *ItemUsecase {
	return &ItemUsecase{
		tx:        tx,
		items:     items,
		audits:    audits,
		txTimeout: txTimeout,
		now:       time.Now,
		log:       logger.With().Str("component", "items").Logger(),
	}
}

// 品目マスタの入力
type ItemInput struct {
	SKU          string
	Name         string
	Category     string
	Unit         string
	Location     string
	MinLevel     int64
	ValuePerUnit decimal.Decimal
}

type CreateItemInput struct {
	ItemInput
	OpeningQuantity int64
}

func (in ItemInput) validate() error {
	if strings.TrimSpace(in.SKU) == "" {
		return NewHTTPError(http.StatusBadRequest, "sku required")
	}
	if len(strings.TrimSpace(in.SKU)) > 64 {
		return NewHTTPError(http.StatusBadRequest, "sku too long")
	}
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}
	if len(strings.TrimSpace(in.Name)) > 255 {
		return NewHTTPError(http.StatusBadRequest, "name too long")
	}
	if in.MinLevel < 0 {
		return NewHTTPError(http.StatusBadRequest, "min_level must be >= 0")
	}
	if in.ValuePerUnit.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "value_per_unit must be >= 0")
	}
	return nil
}

func (in ItemInput) toModel() model.InventoryItem {
	return model.InventoryItem{
		SKU:          strings.TrimSpace(in.SKU),
		Name:         strings.TrimSpace(in.Name),
		Category:     strings.TrimSpace(in.Category),
		Unit:         strings.TrimSpace(in.Unit),
		Location:     strings.TrimSpace(in.Location),
		MinLevel:     in.MinLevel,
		ValuePerUnit: in.ValuePerUnit,
	}
}

// CreateItem は品目を在庫0で作り、期首在庫があれば台帳のADJUSTMENTとして計上する。
func (u *ItemUsecase) CreateItem(ctx context.Context, actorID string, in CreateItemInput) (model.InventoryItem, error) {
	if strings.TrimSpace(actorID) == "" {
		return model.InventoryItem{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := in.validate(); err != nil {
		return model.InventoryItem{}, err
	}
	if in.OpeningQuantity < 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusBadRequest, "opening_quantity must be >= 0")
	}

	ctx, cancel := withTxTimeout(ctx, u.txTimeout)
	defer cancel()

	var created model.InventoryItem
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := r.Items().Create(ctx, in.toModel())
		if err != nil {
			return err
		}

		if in.OpeningQuantity > 0 {
			ok, err := r.Items().ApplyDelta(ctx, item.ID, in.OpeningQuantity)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("opening stock for item %d not applied", item.ID)
			}
			if err := r.Ledger().Create(ctx, &model.LedgerEntry{
				Type:    model.LedgerEntryAdjustment,
				ActorID: actorID,
				Notes:   openingStockReason,
				Lines: []model.LedgerLine{{
					ItemID:       item.ID,
					NameSnapshot: item.Name,
					SKUSnapshot:  item.SKU,
					Quantity:     in.OpeningQuantity,
					Delta:        in.OpeningQuantity,
				}},
				CreatedAt: u.now(),
			}); err != nil {
				return err
			}
			item.Quantity = in.OpeningQuantity
		}

		if err := r.AuditLogs().Create(ctx, u.audit(actorID, model.AuditActionCreateItem, item.ID, nil, &item)); err != nil {
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return model.InventoryItem{}, err
	}

	u.log.Info().Int64("item_id", created.ID).Str("sku", created.SKU).Str("actor_id", actorID).Msg("item created")
	return created, nil
}

// UpdateItem はマスタ項目だけ変える。数量は台帳経由でしか変わらない。
func (u *ItemUsecase) UpdateItem(ctx context.Context, actorID string, itemID int64, in ItemInput) (model.InventoryItem, error) {
	if strings.TrimSpace(actorID) == "" {
		return model.InventoryItem{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if itemID <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if err := in.validate(); err != nil {
		return model.InventoryItem{}, err
	}

	ctx, cancel := withTxTimeout(ctx, u.txTimeout)
	defer cancel()

	var updated model.InventoryItem
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := lockOne(ctx, r, itemID)
		if err != nil {
			return err
		}

		after := in.toModel()
		after.ID = before.ID
		after.Quantity = before.Quantity
		after.CreatedAt = before.CreatedAt
		after.UpdatedAt = u.now()

		if err := r.Items().UpdateMaster(ctx, after); err != nil {
			return err
		}
		if err := r.AuditLogs().Create(ctx, u.audit(actorID, model.AuditActionUpdateItem, itemID, &before, &after)); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return model.InventoryItem{}, err
	}
	return updated, nil
}

// DeleteItem は論理削除。台帳の履歴はそのまま残る。
func (u *ItemUsecase) DeleteItem(ctx context.Context, actorID string, itemID int64) error {
	if strings.TrimSpace(actorID) == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if itemID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	ctx, cancel := withTxTimeout(ctx, u.txTimeout)
	defer cancel()

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := lockOne(ctx, r, itemID)
		if err != nil {
			return err
		}
		if err := r.Items().SoftDelete(ctx, itemID); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, u.audit(actorID, model.AuditActionDeleteItem, itemID, &before, nil))
	})
	if err != nil {
		return err
	}

	u.log.Info().Int64("item_id", itemID).Str("actor_id", actorID).Msg("item deleted")
	return nil
}

func (u *ItemUsecase) GetItem(ctx context.Context, itemID int64) (model.InventoryItem, error) {
	if itemID <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	item, err := u.items.FindByID(ctx, itemID)
	if err != nil {
		return model.InventoryItem{}, fmt.Errorf("find item %d: %w", itemID, err)
	}
	return item, nil
}

type ListItemsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	Location string
	LowStock bool
}

type ItemListOutput struct {
	Items []model.InventoryItem `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

func (u *ItemUsecase) ListItems(ctx context.Context, in ListItemsInput) (ItemListOutput, error) {
	if in.Page < 1 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ItemListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}

	items, total, err := u.items.List(ctx, repo.ItemListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		Category: strings.TrimSpace(in.Category),
		Location: strings.TrimSpace(in.Location),
		LowStock: in.LowStock,
	})
	if err != nil {
		return ItemListOutput{}, fmt.Errorf("list items: %w", err)
	}
	return ItemListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

type ValuationOutput struct {
	Categories    []repo.CategoryValuation `json:"categories"`
	TotalQuantity int64                    `json:"total_quantity"`
	TotalValue    decimal.Decimal          `json:"total_value"`
}

// Valuation はカテゴリ別の 数量×単価 の合計
func (u *ItemUsecase) Valuation(ctx context.Context) (ValuationOutput, error) {
	rows, err := u.items.Valuation(ctx)
	if err != nil {
		return ValuationOutput{}, fmt.Errorf("valuation: %w", err)
	}

	out := ValuationOutput{Categories: rows, TotalValue: decimal.Zero}
	if out.Categories == nil {
		out.Categories = []repo.CategoryValuation{}
	}
	for _, r := range rows {
		out.TotalQuantity += r.Quantity
		out.TotalValue = out.TotalValue.Add(r.Value)
	}
	return out, nil
}

// AuditTrail は品目マスタの変更履歴（新しい順）
func (u *ItemUsecase) AuditTrail(ctx context.Context, itemID int64, limit, offset int) ([]model.AuditLog, error) {
	if itemID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if limit < 1 || limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if offset < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}

	rt := model.AuditResourceInventoryItem
	logs, err := u.audits.List(ctx, repo.AuditLogFilter{
		ResourceType: &rt,
		ResourceID:   &itemID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, fmt.Errorf("audit trail %d: %w", itemID, err)
	}
	return logs, nil
}

func lockOne(ctx context.Context, r repo.TxRepos, itemID int64) (model.InventoryItem, error) {
	locked, err := r.Items().LockByIDs(ctx, []int64{itemID})
	if err != nil {
		return model.InventoryItem{}, err
	}
	item, ok := locked[itemID]
	if !ok {
		return model.InventoryItem{}, repo.ErrNotFound
	}
	return item, nil
}

// 監査ログ（変更前/変更後をjsonbで残す）
func (u *ItemUsecase) audit(actorID string, action model.AuditAction, itemID int64, before, after *model.InventoryItem) model.AuditLog {
	return model.AuditLog{
		ActorID:      actorID,
		Action:       action,
		ResourceType: model.AuditResourceInventoryItem,
		ResourceID:   itemID,
		Before:       toJSON(before),
		After:        toJSON(after),
		CreatedAt:    u.now(),
	}
}

func toJSON(item *model.InventoryItem) datatypes.JSON {
	if item == nil {
		return nil
	}
	b, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func withTxTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
