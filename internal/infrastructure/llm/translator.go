package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/ports"
)

// Translator implements ports.Translator against a LibreTranslate-style
// HTTP endpoint.
type Translator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ ports.Translator = (*Translator)(nil)

// NewTranslator builds a translation client from configuration.
func NewTranslator(cfg config.TranslatorConfig) *Translator {
	return &Translator{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Translate converts text from the source language into English.
func (t *Translator) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	if t == nil || t.endpoint == "" {
		return "", fmt.Errorf("translator misconfigured")
	}
	if sourceLang == "en" || strings.TrimSpace(text) == "" {
		return text, nil
	}

	body, err := json.Marshal(map[string]string{
		"q":       text,
		"source":  sourceLang,
		"target":  "en",
		"api_key": t.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("translator error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}

	return parsed.TranslatedText, nil
}
