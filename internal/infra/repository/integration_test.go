//go:build integration

package repository

// 実Postgres/Redisでの確認。
// go test -tags integration ./internal/infra/repository/...

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"backoffice/internal/config"
	"backoffice/internal/domain/model"
	"backoffice/internal/infra/cache"
	"backoffice/internal/infra/db"
	repo "backoffice/internal/repository"
	"backoffice/internal/usecase"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

type testEnv struct {
	db  *gorm.DB
	rdb *redis.Client
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcPostgres.WithDatabase("backoffice_test"),
		tcPostgres.WithUsername("backoffice"),
		tcPostgres.WithPassword("backoffice"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	gormDB, err := db.Connect(config.Config{DatabaseURL: pgURL, DBMaxOpenConns: 60, DBMaxIdleConns: 10})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	//2回流しても壊れない
	require.NoError(t, db.Migrate(gormDB))

	rdb, err := cache.NewRedis(ctx, rdURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return &testEnv{db: gormDB, rdb: rdb}
}

func TestIntegration(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("postgres sequence is unique under concurrency", func(t *testing.T) {
		assertConcurrentSequence(t, NewSequenceGormRepository(env.db))
	})
	t.Run("redis sequence is unique under concurrency", func(t *testing.T) {
		assertConcurrentSequence(t, NewSequenceRedisRepository(env.rdb))
	})
	t.Run("sequence current", func(t *testing.T) {
		s := NewSequenceGormRepository(env.db)
		ctx := context.Background()

		_, found, err := s.Current(ctx, "defectCode")
		require.NoError(t, err)
		assert.False(t, found)

		_, err = s.Next(ctx, "defectCode")
		require.NoError(t, err)
		v, found, err := s.Current(ctx, "defectCode")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(1), v)
	})
	t.Run("issued number duplicate", func(t *testing.T) {
		r := NewIssuedNumberGormRepository(env.db)
		n := model.IssuedNumber{DocType: "sor", SeqKey: "sor:202501", Value: 1, Code: "SOR-202501-001", ActorID: "u"}
		require.NoError(t, r.Create(context.Background(), n))
		err := r.Create(context.Background(), n)
		assert.ErrorIs(t, err, repo.ErrDuplicateKey)
	})
	t.Run("dispatch never oversells", func(t *testing.T) {
		testNoOversell(t, env)
	})
	t.Run("batch is atomic", func(t *testing.T) {
		testBatchAtomic(t, env)
	})
	t.Run("ledger rows are immutable", func(t *testing.T) {
		testLedgerImmutable(t, env)
	})
	t.Run("idempotent replay", func(t *testing.T) {
		testIdempotentReplay(t, env)
	})
	t.Run("item catalog", func(t *testing.T) {
		testItemCatalog(t, env)
	})
}

func assertConcurrentSequence(t *testing.T, s repo.SequenceRepository) {
	const n = 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Next(context.Background(), "sor:202501")
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, int64(i+1), v)
	}
}

func newItem(t *testing.T, env *testEnv, sku string, qty int64) model.InventoryItem {
	t.Helper()
	uc := usecase.NewItemUsecase(NewTxManagerGorm(env.db), NewInventoryGormRepository(env.db), NewAuditLogGormRepository(env.db), 5*time.Second, zerolog.Nop())
	item, err := uc.CreateItem(context.Background(), "admin", usecase.CreateItemInput{
		ItemInput:       usecase.ItemInput{SKU: sku, Name: "Item " + sku, Category: "parts", ValuePerUnit: decimal.NewFromInt(2)},
		OpeningQuantity: qty,
	})
	require.NoError(t, err)
	return item
}

func newLedger(env *testEnv) *usecase.LedgerUsecase {
	return usecase.NewLedgerUsecase(
		NewTxManagerGorm(env.db),
		NewLedgerGormRepository(env.db),
		cache.NewRedisLocker(env.rdb),
		10*time.Second,
		zerolog.Nop(),
	)
}

func testNoOversell(t *testing.T, env *testEnv) {
	a := newItem(t, env, "OVR-A", 10)
	b := newItem(t, env, "OVR-B", 10)
	u := newLedger(env)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	//A,BとB,Aの順で混ぜてもデッドロックしない
	for i := 0; i < 30; i++ {
		lines := []usecase.MovementLine{{ItemID: a.ID, Quantity: 1}, {ItemID: b.ID, Quantity: 1}}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.Dispatch(context.Background(), usecase.MovementInput{ActorID: "u", Lines: lines})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			var ise *usecase.InsufficientStockError
			assert.True(t, errors.As(err, &ise), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	for _, id := range []int64{a.ID, b.ID} {
		rec, err := u.Reconcile(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.Quantity)
		assert.True(t, rec.Consistent)
	}
}

func testBatchAtomic(t *testing.T, env *testEnv) {
	a := newItem(t, env, "ATM-A", 5)
	u := newLedger(env)

	_, err := u.Receive(context.Background(), usecase.MovementInput{
		ActorID: "u",
		Lines:   []usecase.MovementLine{{ItemID: a.ID, Quantity: 3}, {ItemID: 999999, Quantity: 1}},
	})
	var nf *usecase.ItemNotFoundError
	require.ErrorAs(t, err, &nf)

	got, err := NewInventoryGormRepository(env.db).FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Quantity)
}

func testLedgerImmutable(t *testing.T, env *testEnv) {
	a := newItem(t, env, "IMM-A", 1)

	err := env.db.Exec("UPDATE ledger_lines SET delta = 100 WHERE item_id = ?", a.ID).Error
	assert.Error(t, err)
	err = env.db.Exec("DELETE FROM ledger_entries").Error
	assert.Error(t, err)

	sum, err := NewLedgerGormRepository(env.db).SumDeltaByItem(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum)
}

func testIdempotentReplay(t *testing.T, env *testEnv) {
	a := newItem(t, env, "IDM-A", 0)
	u := newLedger(env)
	in := usecase.MovementInput{
		ActorID:        "u",
		Lines:          []usecase.MovementLine{{ItemID: a.ID, Quantity: 4}},
		IdempotencyKey: "idem-" + a.SKU,
	}

	first, err := u.Receive(context.Background(), in)
	require.NoError(t, err)
	second, err := u.Receive(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	require.Len(t, second.Entry.Lines, 1)
	assert.Equal(t, "IDM-A", second.Entry.Lines[0].SKUSnapshot)

	//別の操作者は同じキーを使える
	other := in
	other.ActorID = "v"
	third, err := u.Receive(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, third.Replayed)
	assert.NotEqual(t, first.Entry.ID, third.Entry.ID)

	//同じ操作者が同じキーで別の移動を出したら409
	_, err = u.Dispatch(context.Background(), usecase.MovementInput{
		ActorID:        "u",
		Lines:          []usecase.MovementLine{{ItemID: a.ID, Quantity: 1}},
		IdempotencyKey: in.IdempotencyKey,
	})
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "want HTTPError, got %v", err)
	assert.Equal(t, 409, he.Status)

	got, err := NewInventoryGormRepository(env.db).FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.Quantity)

	//品目で絞った台帳一覧
	itemID := a.ID
	entries, total, err := NewLedgerGormRepository(env.db).List(context.Background(), repo.LedgerListQuery{Page: 1, Limit: 10, ItemID: &itemID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, third.Entry.ID, entries[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = NewLedgerGormRepository(env.db).List(ctx, repo.LedgerListQuery{Page: 1, Limit: 10, ItemID: &itemID})
	assert.ErrorIs(t, err, context.Canceled)
}

func testItemCatalog(t *testing.T, env *testEnv) {
	ctx := context.Background()
	items := NewInventoryGormRepository(env.db)
	uc := usecase.NewItemUsecase(NewTxManagerGorm(env.db), items, NewAuditLogGormRepository(env.db), 5*time.Second, zerolog.Nop())

	a := newItem(t, env, "CAT-A", 3)

	_, err := uc.CreateItem(ctx, "admin", usecase.CreateItemInput{ItemInput: usecase.ItemInput{SKU: "CAT-A", Name: "dup"}})
	assert.ErrorIs(t, err, repo.ErrDuplicateKey)

	require.NoError(t, uc.DeleteItem(ctx, "admin", a.ID))
	_, err = items.FindByID(ctx, a.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	//削除済みSKUは再利用できる
	_, err = uc.CreateItem(ctx, "admin", usecase.CreateItemInput{ItemInput: usecase.ItemInput{SKU: "CAT-A", Name: "again"}})
	require.NoError(t, err)

	logs, err := uc.AuditTrail(ctx, a.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditActionDeleteItem, logs[0].Action)

	list, total, err := items.List(ctx, repo.ItemListQuery{Page: 1, Limit: 10, Q: "cat-"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "again", list[0].Name)

	val, err := items.Valuation(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, val)
}

