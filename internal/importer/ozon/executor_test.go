package ozon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/domain/document"
	"github.com/marketsync-ledger/internal/domain/ledger"
	"github.com/marketsync-ledger/internal/domain/rawpayload"
	"github.com/marketsync-ledger/internal/importer"
	"github.com/marketsync-ledger/internal/posting"
	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/sessionlog"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type memConnections struct {
	conns map[uuid.UUID]*connection.Connection
}

func (m *memConnections) GetByID(_ context.Context, id uuid.UUID) (*connection.Connection, error) {
	c, ok := m.conns[id]
	if !ok {
		return nil, connection.ErrConnectionNotFound{ConnectionID: id}
	}
	return c, nil
}

func (m *memConnections) List(context.Context) ([]*connection.Connection, error) {
	var out []*connection.Connection
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out, nil
}

type memPayloads struct {
	entries map[string]*rawpayload.Entry
	saveErr error
}

func newMemPayloads() *memPayloads {
	return &memPayloads{entries: make(map[string]*rawpayload.Entry)}
}

func (m *memPayloads) Save(_ context.Context, entry *rawpayload.Entry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[entry.Ref] = entry
	return nil
}

func (m *memPayloads) GetByRef(_ context.Context, ref string) (*rawpayload.Entry, error) {
	e, ok := m.entries[ref]
	if !ok {
		return nil, rawpayload.ErrPayloadNotFound{Ref: ref}
	}
	return e, nil
}

func (m *memPayloads) CleanupOlderThan(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// memProducts mimics the real store's upsert semantics on the natural key.
type memProducts struct {
	bySKU     map[string]*document.Product
	upsertErr map[string]error
}

func newMemProducts() *memProducts {
	return &memProducts{bySKU: make(map[string]*document.Product), upsertErr: make(map[string]error)}
}

func (m *memProducts) Upsert(_ context.Context, p *document.Product) (document.UpsertOutcome, error) {
	if err := m.upsertErr[p.SKU]; err != nil {
		return document.UpsertUnchanged, err
	}
	existing, ok := m.bySKU[p.SKU]
	if !ok {
		m.bySKU[p.SKU] = p
		return document.UpsertInserted, nil
	}
	p.ID = existing.ID
	p.Lifecycle = existing.Lifecycle
	if existing.ContentEquals(p) {
		return document.UpsertUnchanged, nil
	}
	m.bySKU[p.SKU] = p
	return document.UpsertUpdated, nil
}

func (m *memProducts) GetByID(_ context.Context, id uuid.UUID) (*document.Product, error) {
	for _, p := range m.bySKU {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, document.ErrNotFound{Kind: "product", Key: id.String()}
}

func (m *memProducts) GetBySKU(_ context.Context, sku string) (*document.Product, error) {
	p, ok := m.bySKU[sku]
	if !ok {
		return nil, document.ErrNotFound{Kind: "product", Key: sku}
	}
	return p, nil
}

func (m *memProducts) SoftDelete(context.Context, uuid.UUID) error { return nil }

type memSales struct {
	byDoc     map[string]*document.Sale
	upsertErr map[string]error
}

func newMemSales() *memSales {
	return &memSales{byDoc: make(map[string]*document.Sale), upsertErr: make(map[string]error)}
}

func (m *memSales) Upsert(_ context.Context, s *document.Sale) (document.UpsertOutcome, error) {
	if err := m.upsertErr[s.DocumentNo]; err != nil {
		return document.UpsertUnchanged, err
	}
	existing, ok := m.byDoc[s.DocumentNo]
	if !ok {
		m.byDoc[s.DocumentNo] = s
		return document.UpsertInserted, nil
	}
	s.ID = existing.ID
	s.Lifecycle = existing.Lifecycle
	if existing.ContentEquals(s) {
		return document.UpsertUnchanged, nil
	}
	m.byDoc[s.DocumentNo] = s
	return document.UpsertUpdated, nil
}

func (m *memSales) GetByID(_ context.Context, id uuid.UUID) (*document.Sale, error) {
	for _, s := range m.byDoc {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, document.ErrNotFound{Kind: "sale", Key: id.String()}
}

func (m *memSales) GetByDocumentNo(_ context.Context, documentNo string) (*document.Sale, error) {
	s, ok := m.byDoc[documentNo]
	if !ok {
		return nil, document.ErrNotFound{Kind: "sale", Key: documentNo}
	}
	return s, nil
}

func (m *memSales) SetPosted(_ context.Context, id uuid.UUID, posted bool) error {
	for _, s := range m.byDoc {
		if s.ID == id {
			s.Lifecycle.IsPosted = posted
			return nil
		}
	}
	return document.ErrNotFound{Kind: "sale", Key: id.String()}
}

func (m *memSales) SoftDelete(context.Context, uuid.UUID) error { return nil }

type memShipments struct {
	byDoc map[string]*document.Shipment
}

func newMemShipments() *memShipments {
	return &memShipments{byDoc: make(map[string]*document.Shipment)}
}

func (m *memShipments) Upsert(_ context.Context, s *document.Shipment) (document.UpsertOutcome, error) {
	existing, ok := m.byDoc[s.DocumentNo]
	if !ok {
		m.byDoc[s.DocumentNo] = s
		return document.UpsertInserted, nil
	}
	s.ID = existing.ID
	s.Lifecycle = existing.Lifecycle
	if existing.ContentEquals(s) {
		return document.UpsertUnchanged, nil
	}
	m.byDoc[s.DocumentNo] = s
	return document.UpsertUpdated, nil
}

func (m *memShipments) GetByID(_ context.Context, id uuid.UUID) (*document.Shipment, error) {
	for _, s := range m.byDoc {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, document.ErrNotFound{Kind: "shipment", Key: id.String()}
}

func (m *memShipments) GetByDocumentNo(_ context.Context, documentNo string) (*document.Shipment, error) {
	s, ok := m.byDoc[documentNo]
	if !ok {
		return nil, document.ErrNotFound{Kind: "shipment", Key: documentNo}
	}
	return s, nil
}

func (m *memShipments) SetPosted(_ context.Context, id uuid.UUID, posted bool) error {
	for _, s := range m.byDoc {
		if s.ID == id {
			s.Lifecycle.IsPosted = posted
			return nil
		}
	}
	return document.ErrNotFound{Kind: "shipment", Key: id.String()}
}

func (m *memShipments) SoftDelete(context.Context, uuid.UUID) error { return nil }

type memLedger struct {
	entries   map[string][]*ledger.Entry
	insertErr error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string][]*ledger.Entry)}
}

func (m *memLedger) key(ref, rtype string) string { return rtype + "|" + ref }

func (m *memLedger) InsertMany(_ context.Context, entries []*ledger.Entry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, e := range entries {
		k := m.key(e.RegistratorRef, e.RegistratorType)
		m.entries[k] = append(m.entries[k], e)
	}
	return nil
}

func (m *memLedger) DeleteByRegistrator(_ context.Context, ref, rtype string) (int64, error) {
	k := m.key(ref, rtype)
	n := int64(len(m.entries[k]))
	delete(m.entries, k)
	return n, nil
}

func (m *memLedger) GetByRegistrator(_ context.Context, ref, rtype string) ([]*ledger.Entry, error) {
	return m.entries[m.key(ref, rtype)], nil
}

func (m *memLedger) CountByRegistrator(_ context.Context, ref, rtype string) (int64, error) {
	return int64(len(m.entries[m.key(ref, rtype)])), nil
}

func (m *memLedger) ListByDateRange(context.Context, time.Time, time.Time, string, int, int) ([]*ledger.Entry, error) {
	return nil, nil
}

// fakeClient serves pre-canned pages and records how often it was called.
type fakeClient struct {
	productPages  [][]importer.ProductRow
	shipmentPages [][]importer.ShipmentRow
	salePages     [][]importer.SaleRow
	fetchErr      error
	fetches       int
}

func (f *fakeClient) FetchProducts(_ context.Context, page int) ([]importer.ProductRow, bool, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, false, f.fetchErr
	}
	if page >= len(f.productPages) {
		return nil, false, nil
	}
	return f.productPages[page], page < len(f.productPages)-1, nil
}

func (f *fakeClient) FetchShipments(_ context.Context, _, _ time.Time, page int) ([]importer.ShipmentRow, bool, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, false, f.fetchErr
	}
	if page >= len(f.shipmentPages) {
		return nil, false, nil
	}
	return f.shipmentPages[page], page < len(f.shipmentPages)-1, nil
}

func (f *fakeClient) FetchSales(_ context.Context, _, _ time.Time, page int) ([]importer.SaleRow, bool, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, false, f.fetchErr
	}
	if page >= len(f.salePages) {
		return nil, false, nil
	}
	return f.salePages[page], page < len(f.salePages)-1, nil
}

type executorFixture struct {
	executor *Executor
	conn     *connection.Connection
	client   *fakeClient
	products *memProducts
	sales    *memSales
	shipmts  *memShipments
	payloads *memPayloads
	ledger   *memLedger
	tracker  *progress.Tracker
}

func newFixture(t *testing.T, client *fakeClient) *executorFixture {
	t.Helper()

	conn := &connection.Connection{
		ID:          uuid.New(),
		Code:        "ozon-main",
		Marketplace: "ozon",
		IsEnabled:   true,
	}

	logger := newTestLogger()
	products := newMemProducts()
	sales := newMemSales()
	shipments := newMemShipments()
	payloads := newMemPayloads()
	ledgerStore := newMemLedger()
	tracker := progress.NewTracker()

	engine := posting.NewEngine(sales, shipments, ledgerStore, logger)

	executor := NewExecutor(
		logger,
		&memConnections{conns: map[uuid.UUID]*connection.Connection{conn.ID: conn}},
		products,
		shipments,
		sales,
		payloads,
		engine,
		tracker,
		sessionlog.NewLogger(t.TempDir()),
		func(*connection.Connection) Client { return client },
	)

	return &executorFixture{
		executor: executor,
		conn:     conn,
		client:   client,
		products: products,
		sales:    sales,
		shipmts:  shipments,
		payloads: payloads,
		ledger:   ledgerStore,
		tracker:  tracker,
	}
}

func (f *executorFixture) config(targets ...string) json.RawMessage {
	cfg, _ := json.Marshal(importer.ImportRequest{ConnectionID: f.conn.ID, Targets: targets})
	return cfg
}

func (f *executorFixture) run(t *testing.T, sessionID string, cfg json.RawMessage) error {
	t.Helper()
	f.tracker.CreateSession(sessionID)
	return f.executor.Run(context.Background(), cfg, sessionID)
}

func TestExecutor_ImportProducts(t *testing.T) {
	client := &fakeClient{
		productPages: [][]importer.ProductRow{{
			{SKU: "SKU-1", MPItemID: "101", Name: "Widget", Raw: `{"offer_id":"SKU-1"}`},
			{SKU: "SKU-2", MPItemID: "102", Name: "Gadget", Raw: `{"offer_id":"SKU-2"}`},
		}},
	}
	f := newFixture(t, client)

	err := f.run(t, "s1", f.config(TargetProducts))
	require.NoError(t, err)

	snapshot := f.tracker.GetProgress("s1")
	require.NotNil(t, snapshot)
	assert.Equal(t, 2, snapshot.Processed)
	assert.Equal(t, 2, snapshot.Inserted)
	assert.Equal(t, 0, snapshot.Updated)
	assert.Equal(t, 0, snapshot.ErrorCount)

	assert.Len(t, f.products.bySKU, 2)
	// Each row's verbatim payload landed in the archive and the document
	// points back at it.
	assert.Len(t, f.payloads.entries, 2)
	stored := f.products.bySKU["SKU-1"]
	require.NotNil(t, stored)
	archived, err := f.payloads.GetByRef(context.Background(), stored.SourceMeta.RawPayloadRef)
	require.NoError(t, err)
	assert.Equal(t, `{"offer_id":"SKU-1"}`, archived.Payload)
}

func TestExecutor_RowErrorDoesNotAbortRun(t *testing.T) {
	client := &fakeClient{
		productPages: [][]importer.ProductRow{{
			{SKU: "SKU-1", Name: "Widget", Raw: "{}"},
			{SKU: "SKU-2", Name: "Gadget", Raw: "{}"},
		}},
	}
	f := newFixture(t, client)
	f.products.upsertErr["SKU-1"] = errors.New("constraint violation")

	err := f.run(t, "s1", f.config(TargetProducts))
	require.NoError(t, err)

	snapshot := f.tracker.GetProgress("s1")
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.Processed)
	assert.Equal(t, 1, snapshot.Inserted)
	assert.Equal(t, 1, snapshot.ErrorCount)
	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, "product SKU-1", snapshot.Errors[0].Item)
}

func TestExecutor_UnreachableSourceAbortsRun(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("dial tcp: connection refused")}
	f := newFixture(t, client)

	err := f.run(t, "s1", f.config(TargetProducts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch products")
}

func TestExecutor_SalesArePostedOnInsert(t *testing.T) {
	eventTime := time.Now().UTC().Add(-time.Hour)
	client := &fakeClient{
		salePages: [][]importer.SaleRow{{
			{
				DocumentNo: "SALE-1", EventTime: eventTime, Status: "delivered",
				LineID: "1", SKU: "SKU-1", Qty: 1, Price: 990, Amount: 990, Currency: "RUB",
				Raw: "{}",
			},
		}},
	}
	f := newFixture(t, client)

	err := f.run(t, "s1", f.config(TargetSales))
	require.NoError(t, err)

	sale := f.sales.byDoc["SALE-1"]
	require.NotNil(t, sale)
	assert.True(t, sale.Lifecycle.IsPosted)

	entries, err := f.ledger.GetByRegistrator(context.Background(), sale.ID.String(), document.RegistratorTypeSale)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(990), entries[0].Amount)
}

func TestExecutor_DeliveredShipmentProjectsAllLines(t *testing.T) {
	delivered := time.Now().UTC().Add(-2 * time.Hour)
	client := &fakeClient{
		shipmentPages: [][]importer.ShipmentRow{{
			{
				DocumentNo: "SHIP-1", Scheme: "FBS", Status: "delivered", DeliveredAt: &delivered,
				Lines: []importer.ShipmentLine{
					{LineID: "1", SKU: "SKU-1", Qty: 1, Amount: 500, Currency: "RUB"},
					{LineID: "2", SKU: "SKU-2", Qty: 2, Amount: 1200, Currency: "RUB"},
				},
				Raw: "{}",
			},
		}},
	}
	f := newFixture(t, client)

	err := f.run(t, "s1", f.config(TargetShipments))
	require.NoError(t, err)

	shipment := f.shipmts.byDoc["SHIP-1"]
	require.NotNil(t, shipment)
	assert.True(t, shipment.Lifecycle.IsPosted)

	count, err := f.ledger.CountByRegistrator(context.Background(), shipment.ID.String(), document.RegistratorTypeShipment)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExecutor_RerunOfIdenticalDataIsIdempotent(t *testing.T) {
	client := &fakeClient{
		productPages: [][]importer.ProductRow{{
			{SKU: "SKU-1", Name: "Widget", Raw: "{}"},
			{SKU: "SKU-2", Name: "Gadget", Raw: "{}"},
		}},
	}
	f := newFixture(t, client)

	require.NoError(t, f.run(t, "s1", f.config(TargetProducts)))
	require.NoError(t, f.run(t, "s2", f.config(TargetProducts)))

	snapshot := f.tracker.GetProgress("s2")
	require.NotNil(t, snapshot)
	assert.Equal(t, 2, snapshot.Processed)
	assert.Equal(t, 0, snapshot.Inserted)
	assert.Equal(t, 0, snapshot.Updated)
	assert.Len(t, f.products.bySKU, 2)
}

func TestExecutor_RerunHealsSaleMissingLedgerEntries(t *testing.T) {
	eventTime := time.Now().UTC().Add(-time.Hour)
	client := &fakeClient{
		salePages: [][]importer.SaleRow{{
			{
				DocumentNo: "SALE-1", EventTime: eventTime, Status: "delivered",
				LineID: "1", SKU: "SKU-1", Qty: 1, Price: 990, Amount: 990, Currency: "RUB",
				Raw: "{}",
			},
		}},
	}
	f := newFixture(t, client)

	// First run: the document store works but the ledger write fails, leaving
	// the sale posted with no entries.
	f.ledger.insertErr = errors.New("ledger store unavailable")
	require.NoError(t, f.run(t, "s1", f.config(TargetSales)))

	sale := f.sales.byDoc["SALE-1"]
	require.NotNil(t, sale)
	assert.True(t, sale.Lifecycle.IsPosted)

	count, err := f.ledger.CountByRegistrator(context.Background(), sale.ID.String(), document.RegistratorTypeSale)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	snapshot := f.tracker.GetProgress("s1")
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.ErrorCount)

	// Ledger store recovers; re-importing the identical data must repair the
	// projection even though the document itself is unchanged.
	f.ledger.insertErr = nil
	require.NoError(t, f.run(t, "s2", f.config(TargetSales)))

	snapshot = f.tracker.GetProgress("s2")
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.Processed)
	assert.Equal(t, 0, snapshot.Inserted)
	assert.Equal(t, 0, snapshot.Updated)
	assert.Equal(t, 0, snapshot.ErrorCount)

	count, err = f.ledger.CountByRegistrator(context.Background(), sale.ID.String(), document.RegistratorTypeSale)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestExecutor_FailsBeforeIO(t *testing.T) {
	t.Run("malformed config", func(t *testing.T) {
		client := &fakeClient{}
		f := newFixture(t, client)

		err := f.run(t, "s1", json.RawMessage(`{"connection_id":`))
		require.Error(t, err)
		assert.Equal(t, 0, client.fetches)
	})

	t.Run("unknown connection", func(t *testing.T) {
		client := &fakeClient{}
		f := newFixture(t, client)

		cfg, _ := json.Marshal(importer.ImportRequest{ConnectionID: uuid.New(), Targets: []string{TargetProducts}})
		err := f.run(t, "s1", cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, connection.ErrConnectionNotFound{})
		assert.Equal(t, 0, client.fetches)
	})

	t.Run("disabled connection", func(t *testing.T) {
		client := &fakeClient{}
		f := newFixture(t, client)
		f.conn.IsEnabled = false

		err := f.run(t, "s1", f.config(TargetProducts))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
		assert.Equal(t, 0, client.fetches)
	})

	t.Run("unknown target", func(t *testing.T) {
		client := &fakeClient{}
		f := newFixture(t, client)

		err := f.run(t, "s1", f.config("warehouse"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown import target")
	})
}
