package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/magabrotheeeer/tutor-bot/internal/collaborator"
)

// FileLinker возвращает прямую ссылку на файл. Реализуется *tgbotapi.BotAPI.
type FileLinker interface {
	GetFileDirectURL(fileID string) (string, error)
}

// Fetcher скачивает присланные пользователем изображения.
type Fetcher struct {
	links    FileLinker
	client   *http.Client
	maxBytes int64
}

// NewFetcher создаёт Fetcher. Файлы больше maxBytes отклоняются.
func NewFetcher(links FileLinker, client *http.Client, maxBytes int64) *Fetcher {
	return &Fetcher{links: links, client: client, maxBytes: maxBytes}
}

// Fetch скачивает файл fileID.
func (f *Fetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	const op = "telegram.Fetch"

	// Ссылка содержит токен бота, в ошибки и логи она не попадает.
	link, err := f.links.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, redact(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid file link", op, collaborator.ErrCollaboratorFailure)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: download failed: %w", op, collaborator.ErrCollaboratorFailure, redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: unexpected status: %s", op, collaborator.ErrCollaboratorFailure, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%s: %w: file exceeds %d bytes", op, collaborator.ErrCollaboratorFailure, f.maxBytes)
	}
	return data, nil
}

// redact снимает обёртку *url.Error, текст которой содержит адрес запроса
// вместе с токеном бота.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
