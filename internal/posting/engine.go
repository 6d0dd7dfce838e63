// Package posting owns every state transition of a document's posted flag and
// every write into the derived sales ledger. Nothing else in the system is
// allowed to touch ledger rows.
package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/marketsync-ledger/internal/domain/document"
	"github.com/marketsync-ledger/internal/domain/ledger"
)

// Engine toggles documents posted/unposted and (re)materializes their ledger
// entries. Posting is delete-then-recreate, so re-posting an already posted
// document is always safe.
type Engine struct {
	sales     document.SaleRepository
	shipments document.ShipmentRepository
	ledger    ledger.Repository
	logger    *slog.Logger
}

// NewEngine creates a posting engine over the given stores.
func NewEngine(sales document.SaleRepository, shipments document.ShipmentRepository, ledgerRepo ledger.Repository, logger *slog.Logger) *Engine {
	return &Engine{
		sales:     sales,
		shipments: shipments,
		ledger:    ledgerRepo,
		logger:    logger,
	}
}

// PostSale marks a sale posted and regenerates its ledger entries. If entry
// generation fails after the flag write, the sale stays posted with no rows;
// calling PostSale again repairs it.
func (e *Engine) PostSale(ctx context.Context, id uuid.UUID) error {
	sale, err := e.sales.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load sale for posting: %w", err)
	}

	if err := e.sales.SetPosted(ctx, id, true); err != nil {
		return fmt.Errorf("failed to mark sale posted: %w", err)
	}

	if _, err := e.ledger.DeleteByRegistrator(ctx, id.String(), document.RegistratorTypeSale); err != nil {
		return fmt.Errorf("sale posted but stale ledger entries not removed: %w", err)
	}

	if !sale.PostingEligible() {
		return nil
	}

	entries := buildSaleEntries(sale)
	if err := e.ledger.InsertMany(ctx, entries); err != nil {
		// Posted but unprojected; recoverable by re-posting.
		return fmt.Errorf("sale posted but ledger entries not written: %w", err)
	}

	e.logger.Debug("posted sale", "document_no", sale.DocumentNo, "entries", len(entries))
	return nil
}

// UnpostSale clears the posted flag and deletes the sale's ledger entries.
// It never recomputes anything.
func (e *Engine) UnpostSale(ctx context.Context, id uuid.UUID) error {
	if _, err := e.sales.GetByID(ctx, id); err != nil {
		return fmt.Errorf("failed to load sale for unposting: %w", err)
	}

	if err := e.sales.SetPosted(ctx, id, false); err != nil {
		return fmt.Errorf("failed to mark sale unposted: %w", err)
	}

	if _, err := e.ledger.DeleteByRegistrator(ctx, id.String(), document.RegistratorTypeSale); err != nil {
		return fmt.Errorf("sale unposted but ledger entries not removed: %w", err)
	}
	return nil
}

// PostShipment marks a shipment posted and regenerates its ledger entries.
// Only delivered shipments produce entries; posting a shipment in any other
// state just clears its old rows.
func (e *Engine) PostShipment(ctx context.Context, id uuid.UUID) error {
	shipment, err := e.shipments.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load shipment for posting: %w", err)
	}

	if err := e.shipments.SetPosted(ctx, id, true); err != nil {
		return fmt.Errorf("failed to mark shipment posted: %w", err)
	}

	if _, err := e.ledger.DeleteByRegistrator(ctx, id.String(), document.RegistratorTypeShipment); err != nil {
		return fmt.Errorf("shipment posted but stale ledger entries not removed: %w", err)
	}

	if !shipment.PostingEligible() {
		return nil
	}

	entries := buildShipmentEntries(shipment)
	if err := e.ledger.InsertMany(ctx, entries); err != nil {
		return fmt.Errorf("shipment posted but ledger entries not written: %w", err)
	}

	e.logger.Debug("posted shipment", "document_no", shipment.DocumentNo, "entries", len(entries))
	return nil
}

// UnpostShipment clears the posted flag and deletes the shipment's ledger
// entries.
func (e *Engine) UnpostShipment(ctx context.Context, id uuid.UUID) error {
	if _, err := e.shipments.GetByID(ctx, id); err != nil {
		return fmt.Errorf("failed to load shipment for unposting: %w", err)
	}

	if err := e.shipments.SetPosted(ctx, id, false); err != nil {
		return fmt.Errorf("failed to mark shipment unposted: %w", err)
	}

	if _, err := e.ledger.DeleteByRegistrator(ctx, id.String(), document.RegistratorTypeShipment); err != nil {
		return fmt.Errorf("shipment unposted but ledger entries not removed: %w", err)
	}
	return nil
}

// ReplaceFeedEntries swaps the complete entry set for a read-only feed
// registrator (feeds project straight into the ledger without a backing
// document). The same all-or-nothing contract applies.
func (e *Engine) ReplaceFeedEntries(ctx context.Context, registratorRef, registratorType string, entries []*ledger.Entry) error {
	if _, err := e.ledger.DeleteByRegistrator(ctx, registratorRef, registratorType); err != nil {
		return fmt.Errorf("failed to remove previous feed entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := e.ledger.InsertMany(ctx, entries); err != nil {
		return fmt.Errorf("failed to write feed entries: %w", err)
	}
	return nil
}

// buildSaleEntries derives the ledger rows for a sale: one entry for its
// single line.
func buildSaleEntries(sale *document.Sale) []*ledger.Entry {
	return []*ledger.Entry{
		{
			ID:              uuid.New(),
			RegistratorRef:  sale.ID.String(),
			RegistratorType: document.RegistratorTypeSale,
			SaleDate:        sale.EventTime,
			Marketplace:     sale.Marketplace,
			ConnectionRef:   sale.ConnectionID.String(),
			DocumentNo:      sale.DocumentNo,
			LineID:          sale.Line.LineID,
			SKU:             sale.Line.SKU,
			Title:           sale.Line.Name,
			Qty:             sale.Line.Qty,
			Amount:          sale.Line.Amount,
			Currency:        sale.Line.Currency,
			CreatedAt:       time.Now().UTC(),
		},
	}
}

// buildShipmentEntries derives the ledger rows for a delivered shipment: one
// entry per line, dated by delivery when the source reported it.
func buildShipmentEntries(shipment *document.Shipment) []*ledger.Entry {
	eventTime := shipment.SourceMeta.FetchedAt
	if shipment.DeliveredAt != nil {
		eventTime = *shipment.DeliveredAt
	}

	now := time.Now().UTC()
	entries := make([]*ledger.Entry, 0, len(shipment.Lines))
	for _, line := range shipment.Lines {
		entries = append(entries, &ledger.Entry{
			ID:              uuid.New(),
			RegistratorRef:  shipment.ID.String(),
			RegistratorType: document.RegistratorTypeShipment,
			SaleDate:        eventTime,
			Marketplace:     shipment.Marketplace,
			ConnectionRef:   shipment.ConnectionID.String(),
			DocumentNo:      shipment.DocumentNo,
			LineID:          line.LineID,
			SKU:             line.SKU,
			Title:           line.Name,
			Qty:             line.Qty,
			Amount:          line.Amount,
			Currency:        line.Currency,
			CreatedAt:       now,
		})
	}
	return entries
}
