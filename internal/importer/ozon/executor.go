package ozon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/domain/document"
	"github.com/marketsync-ledger/internal/domain/rawpayload"
	"github.com/marketsync-ledger/internal/importer"
	"github.com/marketsync-ledger/internal/posting"
	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/sessionlog"
)

// TaskType is the registry key for Ozon imports.
const TaskType = "import_ozon"

const marketplaceName = "ozon"

// Import targets understood by the executor.
const (
	TargetProducts  = "products"
	TargetShipments = "shipments"
	TargetSales     = "sales"
)

// Executor runs Ozon imports: products, shipments and sales, each mapped into
// documents, archived, upserted by natural key and handed to the posting
// engine where the document type posts.
type Executor struct {
	connections connection.Repository
	products    document.ProductRepository
	shipments   document.ShipmentRepository
	sales       document.SaleRepository
	payloads    rawpayload.Repository
	engine      *posting.Engine
	tracker     *progress.Tracker
	sessionLog  *sessionlog.Logger
	clients     ClientFactory
	logger      *slog.Logger
}

// NewExecutor wires an Ozon import executor.
func NewExecutor(
	logger *slog.Logger,
	connections connection.Repository,
	products document.ProductRepository,
	shipments document.ShipmentRepository,
	sales document.SaleRepository,
	payloads rawpayload.Repository,
	engine *posting.Engine,
	tracker *progress.Tracker,
	sessionLog *sessionlog.Logger,
	clients ClientFactory,
) *Executor {
	return &Executor{
		connections: connections,
		products:    products,
		shipments:   shipments,
		sales:       sales,
		payloads:    payloads,
		engine:      engine,
		tracker:     tracker,
		sessionLog:  sessionLog,
		clients:     clients,
		logger:      logger,
	}
}

// TaskType implements scheduler.TaskManager.
func (e *Executor) TaskType() string {
	return TaskType
}

// counters accumulate across all targets of one run.
type counters struct {
	processed int
	inserted  int
	updated   int
}

// Run executes one Ozon import session. Config and connection problems fail
// before any I/O; an unreachable source aborts the run; row errors are
// recorded and skipped.
func (e *Executor) Run(ctx context.Context, taskConfig json.RawMessage, sessionID string) error {
	req, err := importer.ParseRequest(taskConfig)
	if err != nil {
		return err
	}

	conn, err := e.connections.GetByID(ctx, req.ConnectionID)
	if err != nil {
		return fmt.Errorf("failed to resolve connection: %w", err)
	}
	if !conn.IsEnabled {
		return fmt.Errorf("connection %s is disabled", conn.Code)
	}

	client := e.clients(conn)
	logger := e.logger.With("session_id", sessionID, "connection", conn.Code)
	var c counters

	for _, target := range req.Targets {
		e.log(sessionID, "Importing target "+target)

		switch target {
		case TargetProducts:
			err = e.importProducts(ctx, client, conn, sessionID, &c)
		case TargetShipments:
			err = e.importShipments(ctx, client, conn, req, sessionID, &c)
		case TargetSales:
			err = e.importSales(ctx, client, conn, req, sessionID, &c)
		default:
			return fmt.Errorf("unknown import target %q", target)
		}
		if err != nil {
			logger.Error("Target import aborted", "target", target, "error", err)
			e.log(sessionID, fmt.Sprintf("Target %s aborted: %v", target, err))
			return err
		}
	}

	logger.Info("Import finished",
		"processed", c.processed,
		"inserted", c.inserted,
		"updated", c.updated,
	)
	return nil
}

func (e *Executor) importProducts(ctx context.Context, client Client, conn *connection.Connection, sessionID string, c *counters) error {
	for page := 0; ; page++ {
		rows, more, err := client.FetchProducts(ctx, page)
		if err != nil {
			return fmt.Errorf("failed to fetch products page %d: %w", page, err)
		}

		for _, row := range rows {
			e.importProductRow(ctx, conn, sessionID, row, c)
		}
		e.log(sessionID, fmt.Sprintf("Products page %d: %d rows", page, len(rows)))

		if !more {
			return nil
		}
	}
}

func (e *Executor) importProductRow(ctx context.Context, conn *connection.Connection, sessionID string, row importer.ProductRow, c *counters) {
	label := "product " + row.SKU
	fetchedAt := time.Now().UTC()

	ref, err := e.archive(ctx, "product", row.SKU, row.Raw, fetchedAt)
	if err != nil {
		e.rowError(sessionID, label, "failed to archive payload", err)
		return
	}

	product := document.NewProduct(row.SKU, conn.ID, marketplaceName, row.MPItemID, row.Name, row.Barcode, document.SourceMeta{
		FetchedAt:     fetchedAt,
		RawPayloadRef: ref,
	})

	outcome, err := e.products.Upsert(ctx, product)
	if err != nil {
		e.rowError(sessionID, label, "failed to upsert product", err)
		return
	}

	e.countOutcome(sessionID, label, outcome, c)
}

func (e *Executor) importShipments(ctx context.Context, client Client, conn *connection.Connection, req *importer.ImportRequest, sessionID string, c *counters) error {
	from, to := req.Window(time.Now().UTC())

	for page := 0; ; page++ {
		rows, more, err := client.FetchShipments(ctx, from, to, page)
		if err != nil {
			return fmt.Errorf("failed to fetch shipments page %d: %w", page, err)
		}

		for _, row := range rows {
			e.importShipmentRow(ctx, conn, sessionID, row, c)
		}
		e.log(sessionID, fmt.Sprintf("Shipments page %d: %d rows", page, len(rows)))

		if !more {
			return nil
		}
	}
}

func (e *Executor) importShipmentRow(ctx context.Context, conn *connection.Connection, sessionID string, row importer.ShipmentRow, c *counters) {
	label := "shipment " + row.DocumentNo
	fetchedAt := time.Now().UTC()

	ref, err := e.archive(ctx, "shipment", row.DocumentNo, row.Raw, fetchedAt)
	if err != nil {
		e.rowError(sessionID, label, "failed to archive payload", err)
		return
	}

	lines := make([]document.Line, 0, len(row.Lines))
	for _, l := range row.Lines {
		lines = append(lines, document.Line{
			LineID:   l.LineID,
			SKU:      l.SKU,
			MPItemID: l.MPItemID,
			Name:     l.Name,
			Qty:      l.Qty,
			Price:    l.Price,
			Amount:   l.Amount,
			Currency: l.Currency,
		})
	}

	shipment := document.NewShipment(row.DocumentNo, conn.ID, marketplaceName, row.Scheme, row.Status, row.DeliveredAt, lines, document.SourceMeta{
		FetchedAt:     fetchedAt,
		RawPayloadRef: ref,
	})

	outcome, err := e.shipments.Upsert(ctx, shipment)
	if err != nil {
		e.rowError(sessionID, label, "failed to upsert shipment", err)
		return
	}

	// Post unconditionally: re-posting is idempotent and heals a document
	// whose ledger entries were lost on an earlier run.
	if err := e.engine.PostShipment(ctx, shipment.ID); err != nil {
		e.rowError(sessionID, label, "failed to post shipment", err)
		return
	}

	e.countOutcome(sessionID, label, outcome, c)
}

func (e *Executor) importSales(ctx context.Context, client Client, conn *connection.Connection, req *importer.ImportRequest, sessionID string, c *counters) error {
	from, to := req.Window(time.Now().UTC())

	for page := 0; ; page++ {
		rows, more, err := client.FetchSales(ctx, from, to, page)
		if err != nil {
			return fmt.Errorf("failed to fetch sales page %d: %w", page, err)
		}

		for _, row := range rows {
			e.importSaleRow(ctx, conn, sessionID, row, c)
		}
		e.log(sessionID, fmt.Sprintf("Sales page %d: %d rows", page, len(rows)))

		if !more {
			return nil
		}
	}
}

func (e *Executor) importSaleRow(ctx context.Context, conn *connection.Connection, sessionID string, row importer.SaleRow, c *counters) {
	label := "sale " + row.DocumentNo
	fetchedAt := time.Now().UTC()

	ref, err := e.archive(ctx, "sale", row.DocumentNo, row.Raw, fetchedAt)
	if err != nil {
		e.rowError(sessionID, label, "failed to archive payload", err)
		return
	}

	sale := document.NewSale(row.DocumentNo, conn.ID, marketplaceName, row.EventTime, row.Status, row.Status, document.Line{
		LineID:   row.LineID,
		SKU:      row.SKU,
		MPItemID: row.MPItemID,
		Name:     row.Name,
		Qty:      row.Qty,
		Price:    row.Price,
		Amount:   row.Amount,
		Currency: row.Currency,
	}, document.SourceMeta{
		FetchedAt:     fetchedAt,
		RawPayloadRef: ref,
	})

	outcome, err := e.sales.Upsert(ctx, sale)
	if err != nil {
		e.rowError(sessionID, label, "failed to upsert sale", err)
		return
	}

	if err := e.engine.PostSale(ctx, sale.ID); err != nil {
		e.rowError(sessionID, label, "failed to post sale", err)
		return
	}

	e.countOutcome(sessionID, label, outcome, c)
}

// archive stores the verbatim source payload and returns the ref documents
// point at.
func (e *Executor) archive(ctx context.Context, entityType, naturalKey, raw string, fetchedAt time.Time) (string, error) {
	ref := uuid.New().String()
	err := e.payloads.Save(ctx, &rawpayload.Entry{
		Ref:        ref,
		Source:     marketplaceName,
		EntityType: entityType,
		NaturalKey: naturalKey,
		Payload:    raw,
		FetchedAt:  fetchedAt,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// countOutcome updates run counters and the shared tracker after a successful
// row.
func (e *Executor) countOutcome(sessionID, label string, outcome document.UpsertOutcome, c *counters) {
	c.processed++
	switch outcome {
	case document.UpsertInserted:
		c.inserted++
	case document.UpsertUpdated:
		c.updated++
	}
	e.tracker.UpdateProgress(sessionID, c.processed, c.inserted, c.updated, nil, label)
}

// rowError records one failed row and lets the run continue.
func (e *Executor) rowError(sessionID, label, message string, err error) {
	e.tracker.AddError(sessionID, label, message, err.Error())
	e.log(sessionID, fmt.Sprintf("%s: %s: %v", label, message, err))
}

func (e *Executor) log(sessionID, message string) {
	if err := e.sessionLog.WriteLog(sessionID, message); err != nil {
		e.logger.Warn("Failed to write session log", "session_id", sessionID, "error", err)
	}
}
