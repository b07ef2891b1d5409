// Package tts streams reminder audio from the ElevenLabs text-to-speech
// API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "pNInz6obpgDQGcFmaJgB"
	modelID        = "eleven_multilingual_v2"
	mimeType       = "audio/mpeg"
)

type Config struct {
	APIKey  string
	BaseURL string
	VoiceID string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	voiceID    string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	voiceID := strings.TrimSpace(cfg.VoiceID)
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		voiceID:    voiceID,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Synthesize streams spoken audio for the script. The returned reader is
// the live response body; callers must close it. An empty voiceID falls
// back to the client default.
func (c *Client) Synthesize(ctx context.Context, script string, voiceID string) (io.ReadCloser, string, error) {
	if strings.TrimSpace(script) == "" {
		return nil, "", errors.New("script is required")
	}
	voice := strings.TrimSpace(voiceID)
	if voice == "" {
		voice = c.voiceID
	}

	payload := map[string]any{
		"text":     script,
		"model_id": modelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", mimeType)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("tts request failed, status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, mimeType, nil
}
