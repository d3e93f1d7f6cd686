package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Uploader publishes a local file somewhere viewers can fetch it and returns
// that URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// HTTPUploader posts the file to the relay's media endpoint. The relay
// answers with a URL, usually relative, which is resolved against BaseURL.
type HTTPUploader struct {
	BaseURL string
	Client  *http.Client
}

func (u *HTTPUploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	endpoint := strings.TrimRight(u.BaseURL, "/") + "/api/media"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload media: server returned %s", resp.Status)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload media: bad response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload media: response missing url")
	}
	return u.resolve(out.URL), nil
}

func (u *HTTPUploader) resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimRight(u.BaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}
