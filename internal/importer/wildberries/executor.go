package wildberries

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/domain/document"
	"github.com/marketsync-ledger/internal/domain/ledger"
	"github.com/marketsync-ledger/internal/domain/rawpayload"
	"github.com/marketsync-ledger/internal/importer"
	"github.com/marketsync-ledger/internal/posting"
	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/sessionlog"
)

// TaskType is the registry key for Wildberries imports.
const TaskType = "import_wb"

const marketplaceName = "wildberries"

// Import targets understood by the executor.
const (
	TargetSales  = "sales"
	TargetPrices = "prices"
)

// Executor runs Wildberries imports. Sales become documents and post through
// the engine; the price feed is read-only and projects straight into ledger
// rows under a connection-scoped registrator, so each run replaces the
// previous feed as a whole.
type Executor struct {
	connections connection.Repository
	sales       document.SaleRepository
	payloads    rawpayload.Repository
	engine      *posting.Engine
	tracker     *progress.Tracker
	sessionLog  *sessionlog.Logger
	clients     ClientFactory
	logger      *slog.Logger
}

// NewExecutor wires a Wildberries import executor.
func NewExecutor(
	logger *slog.Logger,
	connections connection.Repository,
	sales document.SaleRepository,
	payloads rawpayload.Repository,
	engine *posting.Engine,
	tracker *progress.Tracker,
	sessionLog *sessionlog.Logger,
	clients ClientFactory,
) *Executor {
	return &Executor{
		connections: connections,
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

type counters struct {
	processed int
	inserted  int
	updated   int
}

// Run executes one Wildberries import session.
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
		case TargetSales:
			err = e.importSales(ctx, client, conn, req, sessionID, &c)
		case TargetPrices:
			err = e.importPrices(ctx, client, conn, sessionID, &c)
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

	ref := uuid.New().String()
	err := e.payloads.Save(ctx, &rawpayload.Entry{
		Ref:        ref,
		Source:     marketplaceName,
		EntityType: "sale",
		NaturalKey: row.DocumentNo,
		Payload:    row.Raw,
		FetchedAt:  fetchedAt,
		CreatedAt:  time.Now().UTC(),
	})
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

	// Post unconditionally: re-posting is idempotent and heals a sale whose
	// ledger entries were lost on an earlier run.
	if err := e.engine.PostSale(ctx, sale.ID); err != nil {
		e.rowError(sessionID, label, "failed to post sale", err)
		return
	}

	c.processed++
	switch outcome {
	case document.UpsertInserted:
		c.inserted++
	case document.UpsertUpdated:
		c.updated++
	}
	e.tracker.UpdateProgress(sessionID, c.processed, c.inserted, c.updated, nil, label)
}

// importPrices pulls the whole feed, then swaps the projection rows in one
// replace so readers never see a half-written feed from this run.
func (e *Executor) importPrices(ctx context.Context, client Client, conn *connection.Connection, sessionID string, c *counters) error {
	registratorRef := "wb-prices:" + conn.ID.String()
	now := time.Now().UTC()
	var entries []*ledger.Entry

	for page := 0; ; page++ {
		rows, more, err := client.FetchPrices(ctx, page)
		if err != nil {
			return fmt.Errorf("failed to fetch prices page %d: %w", page, err)
		}

		for _, row := range rows {
			label := "price " + row.SKU
			entries = append(entries, &ledger.Entry{
				ID:              uuid.New(),
				RegistratorRef:  registratorRef,
				RegistratorType: document.RegistratorTypeWBPriceFeed,
				SaleDate:        now,
				Marketplace:     marketplaceName,
				ConnectionRef:   conn.ID.String(),
				DocumentNo:      registratorRef,
				LineID:          row.SKU,
				SKU:             row.SKU,
				Title:           row.Title,
				Amount:          row.Price,
				Currency:        row.Currency,
				CreatedAt:       now,
			})
			c.processed++
			e.tracker.UpdateProgress(sessionID, c.processed, c.inserted, c.updated, nil, label)
		}
		e.log(sessionID, fmt.Sprintf("Prices page %d: %d rows", page, len(rows)))

		if !more {
			break
		}
	}

	if err := e.engine.ReplaceFeedEntries(ctx, registratorRef, document.RegistratorTypeWBPriceFeed, entries); err != nil {
		return fmt.Errorf("failed to replace price feed entries: %w", err)
	}

	e.log(sessionID, fmt.Sprintf("Price feed replaced: %d entries", len(entries)))
	return nil
}

func (e *Executor) rowError(sessionID, label, message string, err error) {
	e.tracker.AddError(sessionID, label, message, err.Error())
	e.log(sessionID, fmt.Sprintf("%s: %s: %v", label, message, err))
}

func (e *Executor) log(sessionID, message string) {
	if err := e.sessionLog.WriteLog(sessionID, message); err != nil {
		e.logger.Warn("Failed to write session log", "session_id", sessionID, "error", err)
	}
}
