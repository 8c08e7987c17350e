// Package archive stores periodic crop snapshots produced by the image logger.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"path"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

const (
	jpegQuality = 90
	contentType = "image/jpeg"
)

// ErrEmptyFrame is returned when there is nothing to archive.
var ErrEmptyFrame = errors.New("frame has no pixels")

// Archiver persists one crop image.
type Archiver interface {
	Archive(ctx context.Context, cropID string, frame *models.Frame) error
}

// Recorder is notified after every successful archive.
type Recorder interface {
	ImageArchived(cropID string)
}

// Encode renders the frame as JPEG.
func Encode(frame *models.Frame) ([]byte, error) {
	if frame == nil || frame.Image == nil || frame.Image.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}
	return buf.Bytes(), nil
}

// ObjectKey names an archived image: <prefix>/<crop>/<capture time>-<uuid>.jpg.
func ObjectKey(prefix, cropID string, capturedAt time.Time) string {
	name := fmt.Sprintf("%s-%s.jpg", capturedAt.UTC().Format("20060102T150405Z"), uuid.New().String())
	return path.Join(prefix, cropID, name)
}

// Noop drops every image.
type Noop struct{}

func (Noop) Archive(context.Context, string, *models.Frame) error { return nil }

type recorded struct {
	Archiver
	recorder Recorder
	logger   *zap.Logger
}

func (r recorded) Archive(ctx context.Context, cropID string, frame *models.Frame) error {
	if err := r.Archiver.Archive(ctx, cropID, frame); err != nil {
		return err
	}
	r.logger.Info("crop image archived", zap.String("crop_id", cropID), zap.Uint64("frame_seq", frame.Seq))
	if r.recorder != nil {
		r.recorder.ImageArchived(cropID)
	}
	return nil
}

// New builds the archiver selected by cfg.Driver. db is only needed by the mongodb driver.
func New(ctx context.Context, cfg config.ArchiveConfig, db *mongo.Database, recorder Recorder, logger *zap.Logger) (Archiver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		a   Archiver
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "disk":
		a, err = NewDisk(cfg.Dir)
	case "mongodb":
		if db == nil {
			return nil, fmt.Errorf("mongodb archive requires a mongodb database")
		}
		a = NewMongo(db)
	case "s3":
		a, err = NewS3(ctx, S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
	case "http":
		a, err = NewHTTP(cfg.URL, nil)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s archive: %w", cfg.Driver, err)
	}

	return recorded{Archiver: a, recorder: recorder, logger: logger.With(zap.String("archive", cfg.Driver))}, nil
}
