package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/archive"
	"github.com/mamadbah2/cropwatch/internal/service/farm"
)

const (
	streamBoundary  = "frame"
	defaultStreamID = "1"
	noFrameBackoff  = 10 * time.Millisecond
)

// StreamHandler serves the annotated camera feed as MJPEG.
type StreamHandler struct {
	farm     *farm.Registry
	interval time.Duration
	logger   *zap.Logger
}

// NewStreamHandler paces frames by interval; frames may repeat or be skipped.
func NewStreamHandler(registry *farm.Registry, interval time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{farm: registry, interval: interval, logger: logger}
}

// VideoFeed streams multipart/x-mixed-replace JPEG parts until the client leaves.
func (h *StreamHandler) VideoFeed(c *gin.Context) {
	cropID := c.DefaultQuery("cropId", defaultStreamID)
	sup, err := h.farm.Get(cropID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "crop not monitored"})
		return
	}

	ctx := c.Request.Context()
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	h.logger.Info("video feed opened", zap.String("crop_id", cropID))
	frames := 0
	c.Stream(func(w io.Writer) bool {
		frame := sup.Image()
		if frame == nil {
			return sleepCtx(ctx, noFrameBackoff)
		}

		data, err := archive.Encode(frame)
		if err != nil {
			h.logger.Warn("failed to encode stream frame", zap.Error(err))
			return sleepCtx(ctx, noFrameBackoff)
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(data)); err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		frames++
		return sleepCtx(ctx, h.interval)
	})
	h.logger.Info("video feed closed", zap.String("crop_id", cropID), zap.Int("frames", frames))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
