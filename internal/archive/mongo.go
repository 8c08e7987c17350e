package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

const imagesCollection = "crop_images"

// ImageDocument is the stored form of an archived image.
type ImageDocument struct {
	ID          string    `bson:"_id"`
	CropID      string    `bson:"crop_id"`
	CapturedAt  time.Time `bson:"captured_at"`
	ArchivedAt  time.Time `bson:"archived_at"`
	ContentType string    `bson:"content_type"`
	Width       int       `bson:"width"`
	Height      int       `bson:"height"`
	Data        []byte    `bson:"data"`
}

// Mongo keeps images next to the plant readings.
type Mongo struct {
	images *mongo.Collection
	now    func() time.Time
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{images: db.Collection(imagesCollection), now: time.Now}
}

func (m *Mongo) Archive(ctx context.Context, cropID string, frame *models.Frame) error {
	data, err := Encode(frame)
	if err != nil {
		return err
	}

	doc := ImageDocument{
		ID:          uuid.New().String(),
		CropID:      cropID,
		CapturedAt:  frame.CapturedAt.UTC(),
		ArchivedAt:  m.now().UTC(),
		ContentType: contentType,
		Width:       frame.Width(),
		Height:      frame.Height(),
		Data:        data,
	}
	if _, err := m.images.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert crop image: %w", err)
	}
	return nil
}
