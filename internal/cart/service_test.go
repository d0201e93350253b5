package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/storetest"
)

func i64(v int64) *int64 { return &v }

func setup(t *testing.T) (*cart.Service, *storetest.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := storetest.New()
	st.PutColor(3, "red")
	st.PutUnit(catalog.Unit{SizeID: 10, ProductID: 1, BusinessID: 7, ProductName: "Tee", Size: "M", Stock: 5, Price: decimal.RequireFromString("12.50")})
	st.PutUnit(catalog.Unit{SizeID: 11, ProductID: 1, BusinessID: 7, ProductName: "Tee", Size: "M", ColorID: i64(3), Stock: 2, Price: decimal.RequireFromString("13.00")})
	st.PutUnit(catalog.Unit{SizeID: 20, ProductID: 2, BusinessID: 7, ProductName: "Cap", Size: "OS", Stock: 9, Price: decimal.RequireFromString("8.00")})

	return cart.NewService(st, st, cart.NewRedisCache(rdb), nil), st, mr
}

func TestAddItem_MergesRepeatedAdds(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()

	first, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 2, Size: "M"})
	require.NoError(t, err)
	second, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 3, Size: "M"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(10), second.SizeID)
	assert.Equal(t, 5, second.Quantity)
	require.Len(t, st.Lines("u1"), 1)
}

func TestAddItem_ColorSelectsVariant(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 1, Size: "M", ColorID: i64(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(11), line.SizeID)

	items, err := svc.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "red", items[0].ColorName)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("13")))
}

func TestAddItem_Validation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   cart.AddInput
		want error
	}{
		{"missing product", cart.AddInput{Quantity: 1, Size: "M"}, apperr.ErrInvalidInput},
		{"missing size", cart.AddInput{ProductID: 1, Quantity: 1}, apperr.ErrInvalidInput},
		{"missing quantity", cart.AddInput{ProductID: 1, Size: "M"}, apperr.ErrInvalidInput},
		{"negative quantity", cart.AddInput{ProductID: 1, Quantity: -1, Size: "M"}, apperr.ErrInvalidInput},
		{"quantity over the cap", cart.AddInput{ProductID: 1, Quantity: catalog.MaxQuantity + 1, Size: "M"}, apperr.ErrInvalidInput},
		{"quantity past int32", cart.AddInput{ProductID: 1, Quantity: 1 << 40, Size: "M"}, apperr.ErrInvalidInput},
		{"unknown size", cart.AddInput{ProductID: 1, Quantity: 1, Size: "XXL"}, apperr.ErrNotFound},
		{"unknown color", cart.AddInput{ProductID: 1, Quantity: 1, Size: "M", ColorID: i64(99)}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, "u1", tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := svc.AddItem(ctx, "", cart.AddInput{ProductID: 1, Quantity: 1, Size: "M"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAddItem_ConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 2, Quantity: 1, Size: "OS"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	lines := st.Lines("u1")
	require.Len(t, lines, 1)
	assert.Equal(t, 20, lines[0].Quantity)
}

func TestAddItem_MergePastCapIsRejected(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 2, Quantity: catalog.MaxQuantity, Size: "OS"})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 2, Quantity: 1, Size: "OS"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, catalog.MaxQuantity, st.Lines("u1")[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 1, Size: "M"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateQuantity(ctx, "u1", line.ID, 4))
	require.NoError(t, svc.UpdateQuantity(ctx, "u1", line.ID, 4))
	assert.Equal(t, 4, st.Lines("u1")[0].Quantity)

	require.ErrorIs(t, svc.UpdateQuantity(ctx, "u1", line.ID, 0), apperr.ErrInvalidInput)
	require.ErrorIs(t, svc.UpdateQuantity(ctx, "u1", line.ID, catalog.MaxQuantity+1), apperr.ErrInvalidInput)
	require.ErrorIs(t, svc.UpdateQuantity(ctx, "u1", 999, 1), apperr.ErrNotFound)
	// another user's line is invisible
	require.ErrorIs(t, svc.UpdateQuantity(ctx, "u2", line.ID, 1), apperr.ErrNotFound)
}

func TestRemoveItemAndClear_AreIdempotent(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 1, Size: "M"})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 2, Quantity: 1, Size: "OS"})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, "u1", line.ID))
	require.NoError(t, svc.RemoveItem(ctx, "u1", line.ID))
	assert.Len(t, st.Lines("u1"), 1)

	require.NoError(t, svc.Clear(ctx, "u1"))
	require.NoError(t, svc.Clear(ctx, "u1"))
	require.NoError(t, svc.Clear(ctx, "never-shopped"))
	assert.Empty(t, st.Lines("u1"))
}

func TestListItems_CacheInvalidatedByMutations(t *testing.T) {
	svc, _, mr := setup(t)
	ctx := context.Background()

	items, err := svc.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.True(t, mr.Exists("cart:u1:0"))

	line, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 2, Size: "M"})
	require.NoError(t, err)
	v, err := mr.Get("cart_ver:u1")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	items, err = svc.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	require.NoError(t, svc.UpdateQuantity(ctx, "u1", line.ID, 3))
	items, err = svc.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestListItems_FallsBackToRepoWhenRedisDown(t *testing.T) {
	svc, _, mr := setup(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 2, Quantity: 1, Size: "OS"})
	require.NoError(t, err)

	mr.Close()
	items, err := svc.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

type brokenCache struct{}

func (brokenCache) Version(context.Context, string) (int64, error) { return 0, nil }
func (brokenCache) Get(context.Context, string, int64) ([]cart.Item, error) {
	return nil, errors.New("boom")
}
func (brokenCache) Set(context.Context, string, int64, []cart.Item) error { return errors.New("boom") }
func (brokenCache) Invalidate(context.Context, string) error          { return errors.New("boom") }

func TestService_CacheErrorsNeverFailRequests(t *testing.T) {
	st := storetest.New()
	st.PutUnit(catalog.Unit{SizeID: 1, ProductID: 1, BusinessID: 1, ProductName: "Mug", Size: "S", Stock: 1, Price: decimal.NewFromInt(5)})
	svc := cart.NewService(st, st, brokenCache{}, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", cart.AddInput{ProductID: 1, Quantity: 1, Size: "S"})
	require.NoError(t, err)
	items, err := svc.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
