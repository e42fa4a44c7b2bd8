package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/exp/slog"

	"offsync/internal/app/client/config"
	"offsync/internal/domain/replication"
)

var _ replication.RemoteStore = (*httpClient)(nil)

// ErrServer сервер ответил статусом 4xx/5xx
var ErrServer = errors.New("server error")

// httpClient удаленное хранилище поверх API сервиса данных
type httpClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	userAgent string
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) (*httpClient, error) {
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  false,
			DisableKeepAlives:   false,
			MaxIdleConnsPerHost: 10,
		},
	}

	// Определяем протокол
	scheme := "http://"
	if cfg.EnableTLS {
		scheme = "https://"
	}

	return newHTTPClient(client, scheme+cfg.ServerAddress, log), nil
}

func newHTTPClient(client *http.Client, baseURL string, log *slog.Logger) *httpClient {
	return &httpClient{
		client:    client,
		log:       log.With("component", "http_remote"),
		baseURL:   baseURL,
		userAgent: "Offsync-Client/1.0",
	}
}

// Ping проверяет доступность сервера и его базы
func (h *httpClient) Ping(ctx context.Context) error {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

func (h *httpClient) Select(ctx context.Context, table string, filter replication.Filter) ([]replication.Record, error) {
	q := url.Values{}
	if !filter.UpdatedAfter.IsZero() {
		q.Set("updated_after", filter.UpdatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if filter.KeyField != "" {
		q.Set("key", filter.KeyField)
		q.Set("value", fmt.Sprint(filter.KeyValue))
	}

	path := "/api/v1/tables/" + url.PathEscape(table) + "/records"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := h.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Records []map[string]any `json:"records"`
	}
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}

	records := make([]replication.Record, len(out.Records))
	for i, r := range out.Records {
		records[i] = fromJSON(r)
	}
	return records, nil
}

func (h *httpClient) Upsert(ctx context.Context, table, pk string, records []replication.Record) error {
	body := struct {
		Key     string               `json:"key,omitempty"`
		Records []replication.Record `json:"records"`
	}{Key: pk, Records: records}

	resp, err := h.doRequest(ctx, http.MethodPut, "/api/v1/tables/"+url.PathEscape(table)+"/records", body)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

func (h *httpClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)

	h.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}

	return resp, nil
}

func (h *httpClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	h.log.Debug("Получен ответ",
		"status", resp.StatusCode,
		"size", len(body),
	)

	if resp.StatusCode >= 400 {
		// huma отдает ошибки в формате application/problem+json
		var errResp struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
			return fmt.Errorf("%w: статус %d: %s", ErrServer, resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("%w: статус %d", ErrServer, resp.StatusCode)
	}

	if result != nil {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}

// fromJSON числа JSON приводит к int64, если они целые, иначе к float64
func fromJSON(in map[string]any) replication.Record {
	out := make(replication.Record, len(in))
	for k, v := range in {
		n, ok := v.(json.Number)
		if !ok {
			out[k] = v
			continue
		}
		if i, err := n.Int64(); err == nil {
			out[k] = i
		} else if f, err := n.Float64(); err == nil {
			out[k] = f
		} else {
			out[k] = n.String()
		}
	}
	return out
}
