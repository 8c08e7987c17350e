package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

// HTTP uploads images as multipart forms to an ingestion endpoint.
type HTTP struct {
	client *resty.Client
	url    string
}

// NewHTTP builds an uploader; a nil client gets a resty default with a 30s timeout.
func NewHTTP(url string, client *resty.Client) (*HTTP, error) {
	if url == "" {
		return nil, fmt.Errorf("archive upload url required")
	}
	if client == nil {
		client = resty.New().SetTimeout(30 * time.Second)
	}
	return &HTTP{client: client, url: url}, nil
}

func (h *HTTP) Archive(ctx context.Context, cropID string, frame *models.Frame) error {
	data, err := Encode(frame)
	if err != nil {
		return err
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"crop_id":     cropID,
			"captured_at": frame.CapturedAt.UTC().Format(time.RFC3339),
		}).
		SetMultipartField("image", path.Base(ObjectKey("", cropID, frame.CapturedAt)), contentType, bytes.NewReader(data)).
		Post(h.url)
	if err != nil {
		return fmt.Errorf("upload crop image: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("upload crop image: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	return nil
}
