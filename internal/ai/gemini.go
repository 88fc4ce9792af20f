// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai adapts Gemini to the quote extractor, the attachment OCR
// recognizer and the proposal evaluator.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultModel       = "gemini-1.5-flash"
	DefaultTemperature = 0.1

	ocrPrompt = `Transcribe all text in this image exactly as it appears.
Keep the layout of tables and line items, one row per line.
Return only the transcribed text.`
)

// ErrEmptyResponse is returned when the model produced no text candidate.
var ErrEmptyResponse = errors.New("empty model response")

// Config holds Gemini client settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

// Client wraps one Gemini connection. It satisfies quote.Completer and
// extract.Recognizer.
type Client struct {
	client *genai.Client
	json   *genai.GenerativeModel
	vision *genai.GenerativeModel
}

// New connects to Gemini. The API key falls back to GEMINI_API_KEY.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not found")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	jsonModel := client.GenerativeModel(cfg.Model)
	jsonModel.SetTemperature(cfg.Temperature)
	jsonModel.ResponseMIMEType = "application/json"

	vision := client.GenerativeModel(cfg.Model)
	vision.SetTemperature(0)

	return &Client{client: client, json: jsonModel, vision: vision}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Complete sends a prompt that expects a JSON answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.json.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return responseText(resp)
}

// Recognize transcribes the text in an image.
func (c *Client) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := c.vision.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(ocrPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini ocr request failed: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
