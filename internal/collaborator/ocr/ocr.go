// Package ocr клиент HTTP-сервиса распознавания текста (tesseract-server).
// Перед отправкой изображение переводится в оттенки серого и уменьшается.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/magabrotheeeer/tutor-bot/internal/collaborator"
	"github.com/magabrotheeeer/tutor-bot/internal/config"
)

const endpoint = "/tesseract"

// Client распознаёт текст на изображениях.
type Client struct {
	url        string
	languages  []string
	maxWidth   int
	httpClient *http.Client
}

type options struct {
	Languages []string `json:"languages"`
}

type response struct {
	Data struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
	} `json:"data"`
}

// New создаёт клиент по настройкам cfg.
func New(cfg config.OCR) *Client {
	return &Client{
		url:        strings.TrimRight(cfg.URL, "/") + endpoint,
		languages:  cfg.Languages,
		maxWidth:   cfg.MaxWidth,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Extract возвращает распознанный текст. Пустая строка означает, что текст не найден.
func (c *Client) Extract(ctx context.Context, img []byte) (string, error) {
	const op = "ocr.Extract"

	prepared, err := c.prepare(img)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}

	body, contentType, err := c.form(prepared)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %w: unexpected status: %s", op, collaborator.ErrCollaboratorFailure, resp.Status)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}
	return strings.TrimSpace(result.Data.Stdout), nil
}

// prepare декодирует изображение, переводит в оттенки серого, ограничивает ширину
// и кодирует в PNG.
func (c *Client) prepare(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var out image.Image = imaging.Grayscale(img)
	if c.maxWidth > 0 && out.Bounds().Dx() > c.maxWidth {
		out = imaging.Resize(out, c.maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) form(img []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	opts, err := json.Marshal(options{Languages: c.languages})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("options", string(opts)); err != nil {
		return nil, "", err
	}

	part, err := w.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
