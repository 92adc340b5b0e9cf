package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/tutor-bot/internal/collaborator"
)

type linker struct {
	url string
	err error
}

func (l linker) GetFileDirectURL(string) (string, error) { return l.url, l.err }

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			_, _ = w.Write([]byte("image-bytes"))
		case "/big.jpg":
			_, _ = w.Write(make([]byte, 64))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		links   linker
		want    []byte
		wantErr bool
	}{
		{name: "downloads file", links: linker{url: srv.URL + "/ok.jpg"}, want: []byte("image-bytes")},
		{name: "too large", links: linker{url: srv.URL + "/big.jpg"}, wantErr: true},
		{name: "not found", links: linker{url: srv.URL + "/missing.jpg"}, wantErr: true},
		{name: "link error", links: linker{err: errors.New("file is too big")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(tt.links, srv.Client(), 32)
			got, err := f.Fetch(context.Background(), "file-1")
			if tt.wantErr {
				require.ErrorIs(t, err, collaborator.ErrCollaboratorFailure)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetcher_FetchHidesLink(t *testing.T) {
	f := NewFetcher(linker{url: "http://127.0.0.1:1/file/botSECRET/photo.jpg"}, http.DefaultClient, 32)

	_, err := f.Fetch(context.Background(), "file-1")
	require.ErrorIs(t, err, collaborator.ErrCollaboratorFailure)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestFetcher_FetchHidesTokenInLinkError(t *testing.T) {
	f := NewFetcher(linker{err: &url.Error{
		Op:  "Post",
		URL: "https://api.telegram.org/bot123:SECRET/getFile",
		Err: errors.New("dial tcp: connection refused"),
	}}, http.DefaultClient, 32)

	_, err := f.Fetch(context.Background(), "file-1")
	require.ErrorIs(t, err, collaborator.ErrCollaboratorFailure)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotContains(t, err.Error(), "SECRET")
}
