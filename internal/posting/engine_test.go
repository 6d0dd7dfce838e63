package posting

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketsync-ledger/internal/domain/document"
	"github.com/marketsync-ledger/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeLedger keeps entries in memory, grouped the way the real store groups
// them: by registrator.
type fakeLedger struct {
	entries   map[string][]*ledger.Entry
	insertErr error
	deleteErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string][]*ledger.Entry)}
}

func ledgerKey(ref, rtype string) string { return rtype + "|" + ref }

func (f *fakeLedger) InsertMany(_ context.Context, entries []*ledger.Entry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, e := range entries {
		key := ledgerKey(e.RegistratorRef, e.RegistratorType)
		f.entries[key] = append(f.entries[key], e)
	}
	return nil
}

func (f *fakeLedger) DeleteByRegistrator(_ context.Context, ref, rtype string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	key := ledgerKey(ref, rtype)
	n := int64(len(f.entries[key]))
	delete(f.entries, key)
	return n, nil
}

func (f *fakeLedger) GetByRegistrator(_ context.Context, ref, rtype string) ([]*ledger.Entry, error) {
	return f.entries[ledgerKey(ref, rtype)], nil
}

func (f *fakeLedger) CountByRegistrator(_ context.Context, ref, rtype string) (int64, error) {
	return int64(len(f.entries[ledgerKey(ref, rtype)])), nil
}

func (f *fakeLedger) ListByDateRange(_ context.Context, _, _ time.Time, _ string, _, _ int) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, set := range f.entries {
		out = append(out, set...)
	}
	return out, nil
}

type fakeSaleStore struct {
	sales map[uuid.UUID]*document.Sale
}

func (f *fakeSaleStore) Upsert(context.Context, *document.Sale) (document.UpsertOutcome, error) {
	return document.UpsertUnchanged, errors.New("not implemented")
}

func (f *fakeSaleStore) GetByID(_ context.Context, id uuid.UUID) (*document.Sale, error) {
	s, ok := f.sales[id]
	if !ok {
		return nil, document.ErrNotFound{Kind: "sale", Key: id.String()}
	}
	return s, nil
}

func (f *fakeSaleStore) GetByDocumentNo(context.Context, string) (*document.Sale, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSaleStore) SetPosted(_ context.Context, id uuid.UUID, posted bool) error {
	s, ok := f.sales[id]
	if !ok {
		return document.ErrNotFound{Kind: "sale", Key: id.String()}
	}
	s.Lifecycle.IsPosted = posted
	return nil
}

func (f *fakeSaleStore) SoftDelete(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

type fakeShipmentStore struct {
	shipments map[uuid.UUID]*document.Shipment
}

func (f *fakeShipmentStore) Upsert(context.Context, *document.Shipment) (document.UpsertOutcome, error) {
	return document.UpsertUnchanged, errors.New("not implemented")
}

func (f *fakeShipmentStore) GetByID(_ context.Context, id uuid.UUID) (*document.Shipment, error) {
	s, ok := f.shipments[id]
	if !ok {
		return nil, document.ErrNotFound{Kind: "shipment", Key: id.String()}
	}
	return s, nil
}

func (f *fakeShipmentStore) GetByDocumentNo(context.Context, string) (*document.Shipment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeShipmentStore) SetPosted(_ context.Context, id uuid.UUID, posted bool) error {
	s, ok := f.shipments[id]
	if !ok {
		return document.ErrNotFound{Kind: "shipment", Key: id.String()}
	}
	s.Lifecycle.IsPosted = posted
	return nil
}

func (f *fakeShipmentStore) SoftDelete(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

func testEngine(sales *fakeSaleStore, shipments *fakeShipmentStore, entries *fakeLedger) *Engine {
	if sales == nil {
		sales = &fakeSaleStore{sales: map[uuid.UUID]*document.Sale{}}
	}
	if shipments == nil {
		shipments = &fakeShipmentStore{shipments: map[uuid.UUID]*document.Shipment{}}
	}
	return NewEngine(sales, shipments, entries, newTestLogger())
}

func newPostableSale() *document.Sale {
	line := document.Line{LineID: "1", SKU: "SKU-1", Name: "Widget", Qty: 1, Price: 990, Amount: 990, Currency: "RUB"}
	return document.NewSale("DOC-1", uuid.New(), "ozon", time.Now().UTC(), "delivered", "DELIVERED", line, document.SourceMeta{FetchedAt: time.Now().UTC()})
}

func TestEngine_PostSale(t *testing.T) {
	ctx := context.Background()

	t.Run("writes one entry per sale and flips the flag", func(t *testing.T) {
		sale := newPostableSale()
		sales := &fakeSaleStore{sales: map[uuid.UUID]*document.Sale{sale.ID: sale}}
		entries := newFakeLedger()
		engine := testEngine(sales, nil, entries)

		require.NoError(t, engine.PostSale(ctx, sale.ID))

		assert.True(t, sale.Lifecycle.IsPosted)
		got, err := entries.GetByRegistrator(ctx, sale.ID.String(), document.RegistratorTypeSale)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, sale.DocumentNo, got[0].DocumentNo)
		assert.Equal(t, sale.Line.SKU, got[0].SKU)
		assert.Equal(t, sale.Line.Amount, got[0].Amount)
		assert.True(t, got[0].SaleDate.Equal(sale.EventTime))
	})

	t.Run("re-posting replaces instead of duplicating", func(t *testing.T) {
		sale := newPostableSale()
		sales := &fakeSaleStore{sales: map[uuid.UUID]*document.Sale{sale.ID: sale}}
		entries := newFakeLedger()
		engine := testEngine(sales, nil, entries)

		require.NoError(t, engine.PostSale(ctx, sale.ID))
		require.NoError(t, engine.PostSale(ctx, sale.ID))

		count, err := entries.CountByRegistrator(ctx, sale.ID.String(), document.RegistratorTypeSale)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("a failed projection is repaired by posting again", func(t *testing.T) {
		sale := newPostableSale()
		sales := &fakeSaleStore{sales: map[uuid.UUID]*document.Sale{sale.ID: sale}}
		entries := newFakeLedger()
		entries.insertErr = errors.New("mongo down")
		engine := testEngine(sales, nil, entries)

		err := engine.PostSale(ctx, sale.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "posted but ledger entries not written")
		assert.True(t, sale.Lifecycle.IsPosted)

		entries.insertErr = nil
		require.NoError(t, engine.PostSale(ctx, sale.ID))

		count, err := entries.CountByRegistrator(ctx, sale.ID.String(), document.RegistratorTypeSale)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("unknown sale", func(t *testing.T) {
		engine := testEngine(nil, nil, newFakeLedger())

		err := engine.PostSale(ctx, uuid.New())
		assert.ErrorIs(t, err, document.ErrNotFound{Kind: "sale"})
	})
}

func TestEngine_UnpostSale(t *testing.T) {
	ctx := context.Background()

	sale := newPostableSale()
	sales := &fakeSaleStore{sales: map[uuid.UUID]*document.Sale{sale.ID: sale}}
	entries := newFakeLedger()
	engine := testEngine(sales, nil, entries)

	require.NoError(t, engine.PostSale(ctx, sale.ID))
	require.NoError(t, engine.UnpostSale(ctx, sale.ID))

	assert.False(t, sale.Lifecycle.IsPosted)
	count, err := entries.CountByRegistrator(ctx, sale.ID.String(), document.RegistratorTypeSale)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEngine_PostShipment(t *testing.T) {
	ctx := context.Background()

	lines := []document.Line{
		{LineID: "1", SKU: "SKU-1", Qty: 1, Amount: 500, Currency: "RUB"},
		{LineID: "2", SKU: "SKU-2", Qty: 3, Amount: 2100, Currency: "RUB"},
	}

	t.Run("delivered shipment projects one entry per line", func(t *testing.T) {
		delivered := time.Now().UTC().Add(-24 * time.Hour)
		shipment := document.NewShipment("SHIP-1", uuid.New(), "ozon", "FBS", "delivered", &delivered, lines, document.SourceMeta{FetchedAt: time.Now().UTC()})
		shipments := &fakeShipmentStore{shipments: map[uuid.UUID]*document.Shipment{shipment.ID: shipment}}
		entries := newFakeLedger()
		engine := testEngine(nil, shipments, entries)

		require.NoError(t, engine.PostShipment(ctx, shipment.ID))

		got, err := entries.GetByRegistrator(ctx, shipment.ID.String(), document.RegistratorTypeShipment)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, e := range got {
			assert.True(t, e.SaleDate.Equal(delivered))
			assert.Equal(t, shipment.DocumentNo, e.DocumentNo)
		}
	})

	t.Run("undelivered shipment posts with zero entries", func(t *testing.T) {
		shipment := document.NewShipment("SHIP-2", uuid.New(), "ozon", "FBS", "awaiting_deliver", nil, lines, document.SourceMeta{FetchedAt: time.Now().UTC()})
		shipments := &fakeShipmentStore{shipments: map[uuid.UUID]*document.Shipment{shipment.ID: shipment}}
		entries := newFakeLedger()
		engine := testEngine(nil, shipments, entries)

		require.NoError(t, engine.PostShipment(ctx, shipment.ID))

		assert.True(t, shipment.Lifecycle.IsPosted)
		count, err := entries.CountByRegistrator(ctx, shipment.ID.String(), document.RegistratorTypeShipment)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("re-posting after delivery replaces the empty set", func(t *testing.T) {
		shipment := document.NewShipment("SHIP-3", uuid.New(), "ozon", "FBS", "awaiting_deliver", nil, lines, document.SourceMeta{FetchedAt: time.Now().UTC()})
		shipments := &fakeShipmentStore{shipments: map[uuid.UUID]*document.Shipment{shipment.ID: shipment}}
		entries := newFakeLedger()
		engine := testEngine(nil, shipments, entries)

		require.NoError(t, engine.PostShipment(ctx, shipment.ID))

		delivered := time.Now().UTC()
		shipment.StatusRaw = "delivered"
		shipment.StatusNorm = document.NormalizeShipmentStatus("delivered")
		shipment.DeliveredAt = &delivered

		require.NoError(t, engine.PostShipment(ctx, shipment.ID))

		count, err := entries.CountByRegistrator(ctx, shipment.ID.String(), document.RegistratorTypeShipment)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestEngine_ReplaceFeedEntries(t *testing.T) {
	ctx := context.Background()
	entries := newFakeLedger()
	engine := testEngine(nil, nil, entries)

	ref := "wb-prices:" + uuid.NewString()

	first := []*ledger.Entry{
		{ID: uuid.New(), RegistratorRef: ref, RegistratorType: document.RegistratorTypeWBPriceFeed, SKU: "SKU-1"},
		{ID: uuid.New(), RegistratorRef: ref, RegistratorType: document.RegistratorTypeWBPriceFeed, SKU: "SKU-2"},
	}
	require.NoError(t, engine.ReplaceFeedEntries(ctx, ref, document.RegistratorTypeWBPriceFeed, first))

	second := []*ledger.Entry{
		{ID: uuid.New(), RegistratorRef: ref, RegistratorType: document.RegistratorTypeWBPriceFeed, SKU: "SKU-3"},
	}
	require.NoError(t, engine.ReplaceFeedEntries(ctx, ref, document.RegistratorTypeWBPriceFeed, second))

	got, err := entries.GetByRegistrator(ctx, ref, document.RegistratorTypeWBPriceFeed)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SKU-3", got[0].SKU)

	// An empty feed clears everything.
	require.NoError(t, engine.ReplaceFeedEntries(ctx, ref, document.RegistratorTypeWBPriceFeed, nil))
	count, err := entries.CountByRegistrator(ctx, ref, document.RegistratorTypeWBPriceFeed)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
