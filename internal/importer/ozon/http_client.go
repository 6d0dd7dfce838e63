package ozon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/importer"
)

const defaultPageSize = 100

// HTTPClient is the thin HTTP implementation of Client against the Ozon
// seller API. It authenticates with the Client-Id / Api-Key header pair and
// normalizes responses into the shared row types.
type HTTPClient struct {
	baseURL  string
	clientID string
	apiKey   string
	pageSize int
	http     *http.Client
}

// NewHTTPClient builds a client for one connection.
func NewHTTPClient(conn *connection.Connection) Client {
	return &HTTPClient{
		baseURL:  conn.BaseURL,
		clientID: conn.ClientID,
		apiKey:   conn.APIKey,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return "", fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return string(raw), nil
}

type productListRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type productListResponse struct {
	Result struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	} `json:"result"`
}

type productItem struct {
	OfferID   string `json:"offer_id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Barcode   string `json:"barcode"`
}

// FetchProducts retrieves one page of the seller's catalog.
func (c *HTTPClient) FetchProducts(ctx context.Context, page int) ([]importer.ProductRow, bool, error) {
	req := productListRequest{Limit: c.pageSize, Offset: page * c.pageSize}

	var resp productListResponse
	if _, err := c.post(ctx, "/v3/product/list", req, &resp); err != nil {
		return nil, false, err
	}

	rows := make([]importer.ProductRow, 0, len(resp.Result.Items))
	for _, raw := range resp.Result.Items {
		var item productItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false, fmt.Errorf("failed to decode product item: %w", err)
		}
		rows = append(rows, importer.ProductRow{
			SKU:      item.OfferID,
			MPItemID: strconv.FormatInt(item.ProductID, 10),
			Name:     item.Name,
			Barcode:  item.Barcode,
			Raw:      string(raw),
		})
	}

	more := (page+1)*c.pageSize < resp.Result.Total
	return rows, more, nil
}

type postingListRequest struct {
	Filter struct {
		Since string `json:"since"`
		To    string `json:"to"`
	} `json:"filter"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type postingListResponse struct {
	Result struct {
		Postings []json.RawMessage `json:"postings"`
		HasNext  bool              `json:"has_next"`
	} `json:"result"`
}

type postingItem struct {
	PostingNumber  string  `json:"posting_number"`
	Status         string  `json:"status"`
	TplIntegration string  `json:"tpl_integration_type"`
	DeliveringDate *string `json:"delivering_date"`
	Products       []struct {
		SKU          int64  `json:"sku"`
		OfferID      string `json:"offer_id"`
		Name         string `json:"name"`
		Quantity     int    `json:"quantity"`
		Price        string `json:"price"`
		CurrencyCode string `json:"currency_code"`
	} `json:"products"`
}

// FetchShipments retrieves one page of FBS postings in the date window.
func (c *HTTPClient) FetchShipments(ctx context.Context, from, to time.Time, page int) ([]importer.ShipmentRow, bool, error) {
	var req postingListRequest
	req.Filter.Since = from.UTC().Format(time.RFC3339)
	req.Filter.To = to.UTC().Format(time.RFC3339)
	req.Limit = c.pageSize
	req.Offset = page * c.pageSize

	var resp postingListResponse
	if _, err := c.post(ctx, "/v3/posting/fbs/list", req, &resp); err != nil {
		return nil, false, err
	}

	rows := make([]importer.ShipmentRow, 0, len(resp.Result.Postings))
	for _, raw := range resp.Result.Postings {
		var item postingItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false, fmt.Errorf("failed to decode posting: %w", err)
		}

		row := importer.ShipmentRow{
			DocumentNo: item.PostingNumber,
			Scheme:     "FBS",
			Status:     item.Status,
			Raw:        string(raw),
		}
		if item.DeliveringDate != nil && *item.DeliveringDate != "" {
			if ts, err := time.Parse(time.RFC3339, *item.DeliveringDate); err == nil {
				row.DeliveredAt = &ts
			}
		}
		for i, p := range item.Products {
			price := parseMinorUnits(p.Price)
			row.Lines = append(row.Lines, importer.ShipmentLine{
				LineID:   item.PostingNumber + "-" + strconv.Itoa(i+1),
				SKU:      p.OfferID,
				MPItemID: strconv.FormatInt(p.SKU, 10),
				Name:     p.Name,
				Qty:      float64(p.Quantity),
				Price:    price,
				Amount:   price * int64(p.Quantity),
				Currency: p.CurrencyCode,
			})
		}
		rows = append(rows, row)
	}

	return rows, resp.Result.HasNext, nil
}

type transactionListRequest struct {
	Filter struct {
		Date struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"date"`
		TransactionType string `json:"transaction_type"`
	} `json:"filter"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type transactionListResponse struct {
	Result struct {
		Operations []json.RawMessage `json:"operations"`
		PageCount  int               `json:"page_count"`
	} `json:"result"`
}

type transactionItem struct {
	OperationID   int64  `json:"operation_id"`
	OperationDate string `json:"operation_date"`
	OperationType string `json:"operation_type"`
	Amount        string `json:"amount"`
	Items         []struct {
		SKU  int64  `json:"sku"`
		Name string `json:"name"`
	} `json:"items"`
}

// FetchSales retrieves one page of sale operations in the date window.
func (c *HTTPClient) FetchSales(ctx context.Context, from, to time.Time, page int) ([]importer.SaleRow, bool, error) {
	var req transactionListRequest
	req.Filter.Date.From = from.UTC().Format(time.RFC3339)
	req.Filter.Date.To = to.UTC().Format(time.RFC3339)
	req.Filter.TransactionType = "orders"
	req.Page = page + 1 // This API numbers pages from 1
	req.PageSize = c.pageSize

	var resp transactionListResponse
	if _, err := c.post(ctx, "/v3/finance/transaction/list", req, &resp); err != nil {
		return nil, false, err
	}

	rows := make([]importer.SaleRow, 0, len(resp.Result.Operations))
	for _, raw := range resp.Result.Operations {
		var item transactionItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false, fmt.Errorf("failed to decode operation: %w", err)
		}

		eventTime, err := time.Parse(time.RFC3339, item.OperationDate)
		if err != nil {
			eventTime = time.Now().UTC()
		}
		amount := parseMinorUnits(item.Amount)

		row := importer.SaleRow{
			DocumentNo: "ozon-" + strconv.FormatInt(item.OperationID, 10),
			EventTime:  eventTime,
			Status:     item.OperationType,
			LineID:     strconv.FormatInt(item.OperationID, 10),
			Qty:        1,
			Price:      amount,
			Amount:     amount,
			Currency:   "RUB",
			Raw:        string(raw),
		}
		if len(item.Items) > 0 {
			row.SKU = strconv.FormatInt(item.Items[0].SKU, 10)
			row.MPItemID = row.SKU
			row.Name = item.Items[0].Name
		}
		rows = append(rows, row)
	}

	more := page+1 < resp.Result.PageCount
	return rows, more, nil
}

// parseMinorUnits converts a decimal money string into minor currency units.
// Unparseable values become zero; the verbatim payload is archived anyway.
func parseMinorUnits(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return importer.ToMinorUnits(f)
}
