package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"backoffice/internal/domain/model"
	"backoffice/internal/infra/cache"
	repo "backoffice/internal/repository"

	"github.com/rs/zerolog"
)

const (
	maxReferenceLen      = 100
	maxNotesLen          = 1000
	maxIdempotencyKeyLen = 255
	idempotencyLockTTL   = 30 * time.Second
)

type LedgerUsecase struct {
	tx        repo.TransactionManager
	ledger    repo.LedgerRepository
	locker    cache.KeyLocker
	txTimeout time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// DI
func NewLedgerUsecase(
	tx repo.TransactionManager,
	ledger repo.LedgerRepository,
	locker cache.KeyLocker,
	txTimeout time.Duration,
	logger zerolog.Logger,
) *LedgerUsecase {
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	return &LedgerUsecase{
		tx:        tx,
		ledger:    ledger,
		locker:    locker,
		txTimeout: txTimeout,
		now:       time.Now,
		log:       logger.With().Str("component", "ledger").Logger(),
	}
}

// 入庫/出庫の明細1行
type MovementLine struct {
	ItemID   int64
	Quantity int64
}

type MovementInput struct {
	ActorID        string
	Lines          []MovementLine
	Reference      string
	Notes          string
	IdempotencyKey string
}

// 棚卸調整の明細1行（符号付き）
type AdjustmentLine struct {
	ItemID int64
	Delta  int64
}

type AdjustInput struct {
	ActorID        string
	Lines          []AdjustmentLine
	Reason         string
	Reference      string
	IdempotencyKey string
}

// Replayedは同じ冪等キーで既に作成済みだったとき
type MovementResult struct {
	Entry    model.LedgerEntry
	Replayed bool
}

// 台帳に書く直前の形
type posting struct {
	typ       model.LedgerEntryType
	actorID   string
	reference string
	notes     string
	key       string
	lines     []postingLine
}

type postingLine struct {
	itemID   int64
	quantity int64
	delta    int64
}

func (u *LedgerUsecase) Receive(ctx context.Context, in MovementInput) (MovementResult, error) {
	p, err := movementPosting(model.LedgerEntryReceipt, in)
	if err != nil {
		return MovementResult{}, err
	}
	return u.post(ctx, p)
}

func (u *LedgerUsecase) Dispatch(ctx context.Context, in MovementInput) (MovementResult, error) {
	p, err := movementPosting(model.LedgerEntryDispatch, in)
	if err != nil {
		return MovementResult{}, err
	}
	return u.post(ctx, p)
}

func (u *LedgerUsecase) Adjust(ctx context.Context, in AdjustInput) (MovementResult, error) {
	if err := validateCommon(in.ActorID, len(in.Lines), in.Reference, in.IdempotencyKey); err != nil {
		return MovementResult{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return MovementResult{}, NewHTTPError(http.StatusBadRequest, "reason required")
	}
	if len(reason) > maxNotesLen {
		return MovementResult{}, NewHTTPError(http.StatusBadRequest, "reason too long")
	}

	lines := make([]postingLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l.ItemID <= 0 {
			return MovementResult{}, NewHTTPError(http.StatusBadRequest, "invalid item id")
		}
		if l.Delta == 0 {
			return MovementResult{}, NewHTTPError(http.StatusBadRequest, "delta must not be 0")
		}
		if l.Delta == math.MinInt64 {
			return MovementResult{}, NewHTTPError(http.StatusBadRequest, "quantity too large")
		}
		lines = append(lines, postingLine{itemID: l.ItemID, quantity: l.Delta, delta: l.Delta})
	}

	return u.post(ctx, posting{
		typ:       model.LedgerEntryAdjustment,
		actorID:   in.ActorID,
		reference: strings.TrimSpace(in.Reference),
		notes:     reason,
		key:       strings.TrimSpace(in.IdempotencyKey),
		lines:     lines,
	})
}

func movementPosting(typ model.LedgerEntryType, in MovementInput) (posting, error) {
	if err := validateCommon(in.ActorID, len(in.Lines), in.Reference, in.IdempotencyKey); err != nil {
		return posting{}, err
	}
	if len(in.Notes) > maxNotesLen {
		return posting{}, NewHTTPError(http.StatusBadRequest, "notes too long")
	}

	lines := make([]postingLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l.ItemID <= 0 {
			return posting{}, NewHTTPError(http.StatusBadRequest, "invalid item id")
		}
		if l.Quantity <= 0 {
			return posting{}, NewHTTPError(http.StatusBadRequest, "quantity must be > 0")
		}
		lines = append(lines, postingLine{
			itemID:   l.ItemID,
			quantity: l.Quantity,
			delta:    model.SignedDelta(typ, l.Quantity),
		})
	}

	return posting{
		typ:       typ,
		actorID:   in.ActorID,
		reference: strings.TrimSpace(in.Reference),
		notes:     strings.TrimSpace(in.Notes),
		key:       strings.TrimSpace(in.IdempotencyKey),
		lines:     lines,
	}, nil
}

func validateCommon(actorID string, nLines int, reference, key string) error {
	if strings.TrimSpace(actorID) == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if nLines == 0 {
		return NewHTTPError(http.StatusBadRequest, "items required")
	}
	if len(strings.TrimSpace(reference)) > maxReferenceLen {
		return NewHTTPError(http.StatusBadRequest, "reference too long")
	}
	if len(strings.TrimSpace(key)) > maxIdempotencyKeyLen {
		return NewHTTPError(http.StatusBadRequest, "invalid idempotency key")
	}
	return nil
}

func (u *LedgerUsecase) post(ctx context.Context, p posting) (MovementResult, error) {
	if p.key != "" {
		unlock, err := u.locker.Lock(ctx, "ledger:"+p.actorID+":"+p.key, idempotencyLockTTL)
		switch {
		case errors.Is(err, cache.ErrLocked):
			return MovementResult{}, NewHTTPError(http.StatusConflict, "request in progress")
		case err != nil:
			//ロックが取れなくても一意制約で守られる
			u.log.Warn().Err(err).Str("idempotency_key", p.key).Msg("lock unavailable; relying on unique index")
		default:
			defer unlock()
		}
	}

	ctx, cancel := withTxTimeout(ctx, u.txTimeout)
	defer cancel()

	var out MovementResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if p.key != "" {
			existing, found, err := r.Ledger().FindByIdempotencyKey(ctx, p.actorID, p.key)
			if err != nil {
				return err
			}
			if found {
				out, err = replay(existing, p)
				return err
			}
		}

		entry, err := u.apply(ctx, r, p)
		if err != nil {
			return err
		}
		out = MovementResult{Entry: entry}
		return nil
	})

	//同じキーの同時実行で負けた側は勝った側の結果を返す
	if errors.Is(err, repo.ErrDuplicateKey) && p.key != "" {
		existing, found, ferr := u.ledger.FindByIdempotencyKey(ctx, p.actorID, p.key)
		if ferr == nil && found {
			return replay(existing, p)
		}
	}
	if err != nil {
		return MovementResult{}, err
	}

	if !out.Replayed {
		u.log.Info().
			Int64("entry_id", out.Entry.ID).
			Str("type", string(out.Entry.Type)).
			Str("actor_id", out.Entry.ActorID).
			Int("lines", len(out.Entry.Lines)).
			Msg("ledger entry posted")
	}
	return out, nil
}

// 同じキーで中身の違う依頼はエラー（別の移動を黙って捨てない）
func replay(existing model.LedgerEntry, p posting) (MovementResult, error) {
	if !samePosting(existing, p) {
		return MovementResult{}, NewHTTPError(http.StatusConflict, "idempotency key reused with a different request")
	}
	return MovementResult{Entry: existing, Replayed: true}, nil
}

func samePosting(e model.LedgerEntry, p posting) bool {
	if e.Type != p.typ || len(e.Lines) != len(p.lines) {
		return false
	}
	for i, l := range p.lines {
		if e.Lines[i].ItemID != l.itemID || e.Lines[i].Quantity != l.quantity {
			return false
		}
	}
	return true
}

// apply はトランザクション内で ロック→検証→在庫更新→台帳追記 を行う。
// どこかで失敗したらWithinTxがrollbackするので途中の更新は残らない。
func (u *LedgerUsecase) apply(ctx context.Context, r repo.TxRepos, p posting) (model.LedgerEntry, error) {
	ids := distinctItemIDs(p.lines)

	locked, err := r.Items().LockByIDs(ctx, ids)
	if err != nil {
		return model.LedgerEntry{}, err
	}

	balance := make(map[int64]int64, len(ids))
	outbound := make(map[int64]int64, len(ids))
	lines := make([]model.LedgerLine, 0, len(p.lines))

	for _, l := range p.lines {
		item, ok := locked[l.itemID]
		if !ok {
			return model.LedgerEntry{}, &ItemNotFoundError{ItemID: l.itemID}
		}
		if _, seen := balance[l.itemID]; !seen {
			balance[l.itemID] = item.Quantity
		}
		if l.delta > 0 && balance[l.itemID] > math.MaxInt64-l.delta {
			return model.LedgerEntry{}, NewHTTPError(http.StatusBadRequest, "quantity too large")
		}
		balance[l.itemID] += l.delta
		if l.delta < 0 {
			if outbound[l.itemID] > math.MaxInt64+l.delta {
				outbound[l.itemID] = math.MaxInt64
			} else {
				outbound[l.itemID] += -l.delta
			}
		}
		if balance[l.itemID] < 0 {
			return model.LedgerEntry{}, &InsufficientStockError{
				ItemID:    l.itemID,
				Available: item.Quantity,
				Requested: outbound[l.itemID],
			}
		}

		lines = append(lines, model.LedgerLine{
			ItemID:       l.itemID,
			NameSnapshot: item.Name,
			SKUSnapshot:  item.SKU,
			Quantity:     l.quantity,
			Delta:        l.delta,
		})
	}

	//品目ごとに1回だけ更新（id昇順）
	for _, id := range ids {
		net := balance[id] - locked[id].Quantity
		if net == 0 {
			continue
		}
		ok, err := r.Items().ApplyDelta(ctx, id, net)
		if err != nil {
			return model.LedgerEntry{}, err
		}
		if !ok {
			return model.LedgerEntry{}, &InsufficientStockError{
				ItemID:    id,
				Available: locked[id].Quantity,
				Requested: outbound[id],
			}
		}
	}

	entry := model.LedgerEntry{
		Type:      p.typ,
		ActorID:   p.actorID,
		Reference: p.reference,
		Notes:     p.notes,
		Lines:     lines,
		CreatedAt: u.now(),
	}
	if p.key != "" {
		key := p.key
		entry.IdempotencyKey = &key
	}
	if err := r.Ledger().Create(ctx, &entry); err != nil {
		return model.LedgerEntry{}, err
	}
	return entry, nil
}

func distinctItemIDs(lines []postingLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.itemID]; ok {
			continue
		}
		seen[l.itemID] = struct{}{}
		ids = append(ids, l.itemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (u *LedgerUsecase) GetEntry(ctx context.Context, id int64) (model.LedgerEntry, error) {
	if id <= 0 {
		return model.LedgerEntry{}, NewHTTPError(http.StatusBadRequest, "invalid transaction id")
	}
	e, err := u.ledger.FindByID(ctx, id)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("find entry %d: %w", id, err)
	}
	return e, nil
}

type ListEntriesInput struct {
	Page      int
	Limit     int
	Type      string
	ItemID    *int64
	ActorID   string
	Reference string
	From      *time.Time
	To        *time.Time
}

type EntryListOutput struct {
	Items []model.LedgerEntry `json:"items"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

func (u *LedgerUsecase) ListEntries(ctx context.Context, in ListEntriesInput) (EntryListOutput, error) {
	if in.Page < 1 {
		return EntryListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return EntryListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return EntryListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	q := repo.LedgerListQuery{
		Page:      in.Page,
		Limit:     in.Limit,
		ItemID:    in.ItemID,
		ActorID:   strings.TrimSpace(in.ActorID),
		Reference: strings.TrimSpace(in.Reference),
		From:      in.From,
		To:        in.To,
	}
	if in.Type != "" {
		t := model.LedgerEntryType(strings.ToUpper(in.Type))
		if !t.Valid() {
			return EntryListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid type")
		}
		q.Type = &t
	}

	entries, total, err := u.ledger.List(ctx, q)
	if err != nil {
		return EntryListOutput{}, fmt.Errorf("list entries: %w", err)
	}
	return EntryListOutput{Items: entries, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

type ReconcileOutput struct {
	ItemID     int64 `json:"item_id"`
	Quantity   int64 `json:"quantity"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// Reconcile は現在庫と台帳合計を同じロックの下で比べる。
func (u *LedgerUsecase) Reconcile(ctx context.Context, itemID int64) (ReconcileOutput, error) {
	if itemID <= 0 {
		return ReconcileOutput{}, NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	ctx, cancel := withTxTimeout(ctx, u.txTimeout)
	defer cancel()

	var out ReconcileOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		locked, err := r.Items().LockByIDs(ctx, []int64{itemID})
		if err != nil {
			return err
		}
		item, ok := locked[itemID]
		if !ok {
			return repo.ErrNotFound
		}
		sum, err := r.Ledger().SumDeltaByItem(ctx, itemID)
		if err != nil {
			return err
		}
		out = ReconcileOutput{
			ItemID:     itemID,
			Quantity:   item.Quantity,
			LedgerSum:  sum,
			Consistent: item.Quantity == sum,
		}
		return nil
	})
	if err != nil {
		return ReconcileOutput{}, err
	}

	if !out.Consistent {
		u.log.Error().Int64("item_id", itemID).Int64("quantity", out.Quantity).Int64("ledger_sum", out.LedgerSum).Msg("stock does not match ledger")
	}
	return out, nil
}
