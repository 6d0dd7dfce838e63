package wildberries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marketsync-ledger/internal/domain/connection"
	"github.com/marketsync-ledger/internal/importer"
)

const defaultPageSize = 1000

// HTTPClient is the thin HTTP implementation of Client against the
// Wildberries statistics API. Authentication is a bearer token; endpoints are
// GET with query parameters.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
}

// NewHTTPClient builds a client for one connection.
func NewHTTPClient(conn *connection.Connection) Client {
	return &HTTPClient{
		baseURL:  conn.BaseURL,
		apiKey:   conn.APIKey,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

type saleItem struct {
	SaleID      string  `json:"saleID"`
	Date        string  `json:"date"`
	SupplierArt string  `json:"supplierArticle"`
	NmID        int64   `json:"nmId"`
	Subject     string  `json:"subject"`
	FinishedPrc float64 `json:"finishedPrice"`
	ForPay      float64 `json:"forPay"`
}

// FetchSales retrieves one page of sale rows in the date window. The source
// reports sales one line per row.
func (c *HTTPClient) FetchSales(ctx context.Context, from, to time.Time, page int) ([]importer.SaleRow, bool, error) {
	params := url.Values{}
	params.Set("dateFrom", from.UTC().Format("2006-01-02"))
	params.Set("dateTo", to.UTC().Format("2006-01-02"))
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("offset", strconv.Itoa(page*c.pageSize))

	var items []json.RawMessage
	if err := c.get(ctx, "/api/v1/supplier/sales", params, &items); err != nil {
		return nil, false, err
	}

	rows := make([]importer.SaleRow, 0, len(items))
	for _, raw := range items {
		var item saleItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false, fmt.Errorf("failed to decode sale row: %w", err)
		}

		eventTime, err := time.Parse("2006-01-02T15:04:05", item.Date)
		if err != nil {
			eventTime = time.Now().UTC()
		}

		// A negative payout is a return; qty carries the sign alongside the
		// amount.
		status := "sale"
		qty := 1.0
		if item.ForPay < 0 {
			status = "return"
			qty = -1
		}

		rows = append(rows, importer.SaleRow{
			DocumentNo: "wb-" + item.SaleID,
			EventTime:  eventTime,
			Status:     status,
			LineID:     item.SaleID,
			SKU:        item.SupplierArt,
			MPItemID:   strconv.FormatInt(item.NmID, 10),
			Name:       item.Subject,
			Qty:        qty,
			Price:      importer.ToMinorUnits(item.FinishedPrc),
			Amount:     importer.ToMinorUnits(item.ForPay),
			Currency:   "RUB",
			Raw:        string(raw),
		})
	}

	return rows, len(items) == c.pageSize, nil
}

type priceItem struct {
	NmID     int64   `json:"nmId"`
	Vendor   string  `json:"vendorCode"`
	Subject  string  `json:"subject"`
	Price    float64 `json:"price"`
	Discount int     `json:"discount"`
}

// FetchPrices retrieves one page of the current goods price feed.
func (c *HTTPClient) FetchPrices(ctx context.Context, page int) ([]importer.PriceRow, bool, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("offset", strconv.Itoa(page*c.pageSize))

	var items []json.RawMessage
	if err := c.get(ctx, "/public/api/v1/info", params, &items); err != nil {
		return nil, false, err
	}

	rows := make([]importer.PriceRow, 0, len(items))
	for _, raw := range items {
		var item priceItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false, fmt.Errorf("failed to decode price row: %w", err)
		}

		discounted := item.Price * float64(100-item.Discount) / 100

		rows = append(rows, importer.PriceRow{
			SKU:      item.Vendor,
			Title:    item.Subject,
			Price:    importer.ToMinorUnits(discounted),
			Currency: "RUB",
			Raw:      string(raw),
		})
	}

	return rows, len(items) == c.pageSize, nil
}
