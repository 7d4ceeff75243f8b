// Package refinitiv provides a client for the Eikon Data API proxy.
// The proxy runs next to an Eikon desktop session and answers DataGrid
// requests with tables of TR fields.
package refinitiv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/alphabeta/internal/gateway"
	"github.com/rs/zerolog"
)

const (
	dataPath       = "/api/v1/data"
	dataGridEntity = "DataGrid_StandardAsync"
	appKeyHeader   = "x-tr-applicationid"
)

// TR fields requested per category. Prices are unadjusted.
var (
	PriceFields = []string{
		"TR.OPENPRICE(Adjusted=0)",
		"TR.HIGHPRICE(Adjusted=0)",
		"TR.LOWPRICE(Adjusted=0)",
		"TR.CLOSEPRICE(Adjusted=0)",
		"TR.PriceCloseDate",
	}
	DividendFields = []string{
		"TR.DivExDate",
		"TR.DivUnadjustedGross",
		"TR.DivType",
		"TR.DivPaymentType",
	}
	SplitFields = []string{
		"TR.CAEffectiveDate",
		"TR.CAAdjustmentFactor",
	}
)

// labels are the display names the proxy uses for the fields above.
var labels = gateway.Labels{
	Instrument: "Instrument",

	PriceDate: "Date",
	Open:      "Open Price",
	High:      "High Price",
	Low:       "Low Price",
	Close:     "Close Price",

	DivDate:   "Dividend Ex Date",
	DivAmount: "Gross Dividend Amount",
	DivType:   "Dividend Type",
	PayType:   "Dividend Payment Type",

	SplitDate:  "Capital Change Effective Date",
	SplitRatio: "Adjustment Factor",
}

// Field is one requested TR field.
type Field struct {
	Name string `json:"name"`
}

// DataRequest is one DataGrid request.
type DataRequest struct {
	Instruments []string          `json:"instruments"`
	Fields      []Field           `json:"fields"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

type entity struct {
	E string `json:"E"`
	W struct {
		Requests []DataRequest `json:"requests"`
	} `json:"W"`
}

type envelope struct {
	Entity entity `json:"Entity"`
}

// Header describes one response column.
type Header struct {
	DisplayName string `json:"displayName"`
	Field       string `json:"field,omitempty"`
}

// CellError is a per-cell problem reported alongside a response.
type CellError struct {
	Code    int    `json:"code"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// DataResponse is one DataGrid response.
type DataResponse struct {
	Headers          [][]Header       `json:"headers"`
	Data             [][]gateway.Cell `json:"data"`
	Error            []CellError      `json:"error,omitempty"`
	TotalRowsCount   int              `json:"totalRowsCount"`
	TotalColumnCount int              `json:"totalColumnsCount"`
}

type dataEnvelope struct {
	Responses    []DataResponse `json:"responses"`
	ErrorCode    int            `json:"ErrorCode,omitempty"`
	ErrorMessage string         `json:"ErrorMessage,omitempty"`
}

// APIError is an error reported by the proxy itself.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eikon error %d: %s", e.Code, e.Message)
}

// Client is the Eikon Data API proxy client.
type Client struct {
	baseURL    string
	appKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new proxy client.
func NewClient(baseURL, appKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		appKey:  appKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("component", "refinitiv").Logger(),
	}
}

// Labels returns the display names of the frames this client produces.
func (c *Client) Labels() gateway.Labels {
	return labels
}

// FetchPrices requests unadjusted daily OHLC prices.
func (c *Client) FetchPrices(ctx context.Context, q gateway.Query) (*gateway.Frame, error) {
	return c.GetData(ctx, q.Instruments, PriceFields, rangeParams(q, nil))
}

// FetchDividends requests dividend events by ex-date.
func (c *Client) FetchDividends(ctx context.Context, q gateway.Query) (*gateway.Frame, error) {
	return c.GetData(ctx, q.Instruments, DividendFields, rangeParams(q, nil))
}

// FetchSplits requests stock split adjustment factors.
func (c *Client) FetchSplits(ctx context.Context, q gateway.Query) (*gateway.Frame, error) {
	return c.GetData(ctx, q.Instruments, SplitFields, rangeParams(q, map[string]string{
		"CAEventType": "SSP",
	}))
}

func rangeParams(q gateway.Query, extra map[string]string) map[string]string {
	params := map[string]string{
		"SDate": q.Start.String(),
		"EDate": q.End.String(),
		"Frq":   "D",
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

// GetData issues one DataGrid request and returns the table it answers with.
func (c *Client) GetData(ctx context.Context, instruments, fields []string, params map[string]string) (*gateway.Frame, error) {
	req := DataRequest{
		Instruments: instruments,
		Fields:      make([]Field, len(fields)),
		Parameters:  params,
	}
	for i, f := range fields {
		req.Fields[i] = Field{Name: f}
	}

	var body envelope
	body.Entity.E = dataGridEntity
	body.Entity.W.Requests = []DataRequest{req}

	resp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}

	for _, ce := range resp.Error {
		c.log.Debug().
			Int("code", ce.Code).
			Int("row", ce.Row).
			Int("col", ce.Col).
			Str("message", ce.Message).
			Msg("Eikon cell error")
	}

	frame := &gateway.Frame{Rows: resp.Data}
	if len(resp.Headers) > 0 {
		// Horizontal orientation: the last header row carries the display names.
		last := resp.Headers[len(resp.Headers)-1]
		frame.Headers = make([]string, len(last))
		for i, h := range last {
			frame.Headers[i] = h.DisplayName
		}
	}

	c.log.Debug().
		Strs("instruments", instruments).
		Int("rows", frame.Len()).
		Msg("Eikon data received")

	return frame, nil
}

func (c *Client) do(ctx context.Context, body envelope) (*DataResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+dataPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(appKeyHeader, c.appKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("eikon proxy returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result dataEnvelope
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.ErrorCode != 0 || result.ErrorMessage != "" {
		return nil, &APIError{Code: result.ErrorCode, Message: result.ErrorMessage}
	}
	if len(result.Responses) == 0 {
		return nil, fmt.Errorf("eikon proxy returned no responses")
	}

	return &result.Responses[0], nil
}
