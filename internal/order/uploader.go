package order

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultUploadURL is the catbox.moe file upload endpoint.
const DefaultUploadURL = "https://catbox.moe/user/api.php"

// Uploader relays decoded image bytes to an external host and returns the
// public URL. Kept as an interface so handlers are testable without the
// network.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// CatboxUploader uploads images to catbox.moe via its multipart form API.
type CatboxUploader struct {
	URL    string
	Client *http.Client
}

func NewCatboxUploader() *CatboxUploader {
	return &CatboxUploader{
		URL:    DefaultUploadURL,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (u *CatboxUploader) Upload(ctx context.Context, image []byte) (string, error) {
	ext := sniffExtension(image)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("reqtype", "fileupload"); err != nil {
		return "", err
	}
	part, err := form.CreateFormFile("fileToUpload", "image."+ext)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	res, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload image: unexpected status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// sniffExtension picks a file extension from magic bytes. The host only
// needs something plausible in the filename.
func sniffExtension(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif"
	case len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	default:
		return "bin"
	}
}
