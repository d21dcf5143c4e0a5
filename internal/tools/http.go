package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxHTTPBody        = 1 << 20
)

// HTTPConfig 描述一个以 HTTP 接口形式提供的外部工具（数据分析、搜索、API 调用等）。
type HTTPConfig struct {
	Name        string            `mapstructure:"name"`
	Description string            `mapstructure:"description"`
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

// HTTPTool 以 POST {"query": "..."} 调用远端服务。
// 响应若是含 result 字段的 JSON 对象则取该字段，否则原样返回响应体。
type HTTPTool struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPTool(cfg HTTPConfig) (*HTTPTool, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("http tool name is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("http tool %s: url is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPTool{cfg: cfg, client: &http.Client{Timeout: timeout}}, nil
}

func (t *HTTPTool) Name() string        { return t.cfg.Name }
func (t *HTTPTool) Description() string { return t.cfg.Description }

func (t *HTTPTool) Invoke(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s returned %d: %s", t.cfg.Name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var wrapped struct {
		Result *string `json:"result"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Result != nil {
		return *wrapped.Result, nil
	}
	return string(data), nil
}
