package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
)

var _ repository.Store = (*MongoDBRepository)(nil)

const (
	cropsCollection      = "crops"
	plantsCollection     = "plants"
	cropPlantsCollection = "crop_plants"
	readingsCollection   = "plant_readings"
)

type plantDocument struct {
	ID          string     `bson:"_id"`
	Type        string     `bson:"type"`
	Description string     `bson:"description"`
	PlantedAt   *time.Time `bson:"planted_at,omitempty"`
	// ROI is absent on plants written before geometry was stored.
	ROI *models.ROIDescriptor `bson:"roi,omitempty"`
}

// readingDocument keys a reading by snapshot and plant so a retried batch
// cannot store the same reading twice.
type readingDocument struct {
	ID                  string `bson:"_id,omitempty"`
	models.PlantReading `bson:",inline"`
}

type membershipDocument struct {
	CropID  string `bson:"crop_id"`
	PlantID string `bson:"plant_id"`
}

// MongoDBRepository implements repository.Store for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := NewFromClient(client, dbName)
	if err := r.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

// NewFromClient wraps a connected client without touching the server.
func NewFromClient(client *mongo.Client, dbName string) *MongoDBRepository {
	return &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		now:    time.Now,
	}
}

// Database exposes the handle so other components (the image archive) share the connection.
func (r *MongoDBRepository) Database() *mongo.Database {
	return r.db
}

// EnsureIndexes creates the membership and history indexes.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(cropPlantsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "crop_id", Value: 1}, {Key: "plant_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create crop_plants index: %w", err)
	}
	_, err = r.db.Collection(readingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "plant_id", Value: 1}, {Key: "logged_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create plant_readings index: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) PlantIDs(ctx context.Context, cropID string) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.db.Collection(cropPlantsCollection).Find(ctx, bson.M{"crop_id": cropID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find plants of crop %s: %w", cropID, err)
	}

	var docs []membershipDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode plants of crop %s: %w", cropID, err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.PlantID
	}
	return ids, nil
}

func (r *MongoDBRepository) PlantHistory(ctx context.Context, plantID string) ([]models.PlantReading, error) {
	opts := options.Find().SetSort(bson.D{{Key: "logged_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.db.Collection(readingsCollection).Find(ctx, bson.M{"plant_id": plantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find history of plant %s: %w", plantID, err)
	}

	var readings []models.PlantReading
	if err := cur.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("decode history of plant %s: %w", plantID, err)
	}
	return readings, nil
}

func (r *MongoDBRepository) PlantDetails(ctx context.Context, cropID, plantID string) (models.PlantDetails, error) {
	err := r.db.Collection(cropPlantsCollection).
		FindOne(ctx, bson.M{"crop_id": cropID, "plant_id": plantID}).
		Err()
	if err != nil {
		return models.PlantDetails{}, notFound(err, "plant %s in crop %s", plantID, cropID)
	}

	var plant plantDocument
	if err := r.db.Collection(plantsCollection).FindOne(ctx, bson.M{"_id": plantID}).Decode(&plant); err != nil {
		return models.PlantDetails{}, notFound(err, "plant %s", plantID)
	}

	details := models.PlantDetails{Type: plant.Type, ROI: models.ROIDescriptor{Index: -1}}
	if plant.ROI != nil {
		details.ROI = *plant.ROI
	}
	if plant.PlantedAt != nil {
		details.PlantedAt = *plant.PlantedAt
		return details, nil
	}

	var crop models.Crop
	err = r.db.Collection(cropsCollection).FindOne(ctx, bson.M{"_id": cropID}).Decode(&crop)
	switch {
	case err == nil:
		details.PlantedAt = crop.PlantedAt
	case !errors.Is(err, mongo.ErrNoDocuments):
		return models.PlantDetails{}, fmt.Errorf("find crop %s: %w", cropID, err)
	}
	return details, nil
}

func (r *MongoDBRepository) InsertPlant(ctx context.Context, plant models.Plant) error {
	roi := plant.ROI
	doc := plantDocument{ID: plant.ID, Type: plant.Type, Description: plant.Description, ROI: &roi}
	if !plant.PlantedAt.IsZero() {
		planted := plant.PlantedAt.UTC()
		doc.PlantedAt = &planted
	}
	if _, err := r.db.Collection(plantsCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("plant %s: %w", plant.ID, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert plant %s: %w", plant.ID, err)
	}
	return nil
}

func (r *MongoDBRepository) AssociatePlant(ctx context.Context, cropID, plantID string) error {
	doc := membershipDocument{CropID: cropID, PlantID: plantID}
	if _, err := r.db.Collection(cropPlantsCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to associate plant %s with crop %s: %w", plantID, cropID, err)
	}
	return nil
}

// InsertSnapshot saves one reading per plant in a single unordered batch.
// Readings carrying a snapshot id get a deterministic _id; duplicates left by
// an earlier partial write of the same snapshot count as stored.
func (r *MongoDBRepository) InsertSnapshot(ctx context.Context, readings []models.PlantReading) error {
	if len(readings) == 0 {
		return nil
	}

	loggedAt := r.now().UTC()
	docs := make([]interface{}, len(readings))
	for i, reading := range readings {
		reading.LoggedAt = loggedAt
		doc := readingDocument{PlantReading: reading}
		if reading.SnapshotID != "" {
			doc.ID = reading.SnapshotID + ":" + reading.PlantID
		}
		docs[i] = doc
	}

	opts := options.InsertMany().SetOrdered(false)
	if _, err := r.db.Collection(readingsCollection).InsertMany(ctx, docs, opts); err != nil && !onlyDuplicateKeys(err) {
		return fmt.Errorf("failed to insert plant snapshot: %w", err)
	}
	return nil
}

func onlyDuplicateKeys(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		switch we.Code {
		case 11000, 11001, 12582:
		default:
			return false
		}
	}
	return true
}

func (r *MongoDBRepository) CurrentCrops(ctx context.Context) ([]models.Crop, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.db.Collection(cropsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find crops: %w", err)
	}

	var crops []models.Crop
	if err := cur.All(ctx, &crops); err != nil {
		return nil, fmt.Errorf("decode crops: %w", err)
	}
	for i := range crops {
		ids, err := r.PlantIDs(ctx, crops[i].ID)
		if err != nil {
			return nil, err
		}
		crops[i].PlantIDs = ids
	}
	return crops, nil
}

func (r *MongoDBRepository) CreateCrop(ctx context.Context, crop models.Crop) (bool, error) {
	crop.PlantedAt = crop.PlantedAt.UTC()
	if _, err := r.db.Collection(cropsCollection).InsertOne(ctx, crop); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert crop %s: %w", crop.ID, err)
	}
	return true, nil
}

func (r *MongoDBRepository) CropsWithPlants(ctx context.Context) ([]models.CropWithPlants, error) {
	crops, err := r.CurrentCrops(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.CropWithPlants, 0, len(crops))
	for _, crop := range crops {
		entry := models.CropWithPlants{ID: crop.ID, Plants: []models.CropPlant{}}
		if len(crop.PlantIDs) > 0 {
			cur, err := r.db.Collection(plantsCollection).Find(ctx, bson.M{"_id": bson.M{"$in": crop.PlantIDs}})
			if err != nil {
				return nil, fmt.Errorf("find plants of crop %s: %w", crop.ID, err)
			}
			var docs []plantDocument
			if err := cur.All(ctx, &docs); err != nil {
				return nil, fmt.Errorf("decode plants of crop %s: %w", crop.ID, err)
			}
			byID := make(map[string]plantDocument, len(docs))
			for _, d := range docs {
				byID[d.ID] = d
			}
			for _, id := range crop.PlantIDs {
				d, ok := byID[id]
				if !ok {
					continue
				}
				entry.Plants = append(entry.Plants, models.CropPlant{
					ID:          d.ID,
					Type:        d.Type,
					Description: d.Description,
					PlantedTime: crop.PlantedAt,
				})
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *MongoDBRepository) AddPlantToCrop(ctx context.Context, cropID string, plant models.Plant) (bool, error) {
	if err := r.InsertPlant(ctx, plant); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	if err := r.AssociatePlant(ctx, cropID, plant.ID); err != nil {
		_, _ = r.db.Collection(plantsCollection).DeleteOne(ctx, bson.M{"_id": plant.ID})
		return false, err
	}
	return true, nil
}

func (r *MongoDBRepository) DeletePlantFromCrop(ctx context.Context, cropID, plantID string) error {
	res, err := r.db.Collection(cropPlantsCollection).DeleteOne(ctx, bson.M{"crop_id": cropID, "plant_id": plantID})
	if err != nil {
		return fmt.Errorf("failed to remove plant %s from crop %s: %w", plantID, cropID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrNotFound)
	}
	if _, err := r.db.Collection(plantsCollection).DeleteOne(ctx, bson.M{"_id": plantID}); err != nil {
		return fmt.Errorf("failed to delete plant %s: %w", plantID, err)
	}
	return nil
}

func (r *MongoDBRepository) PlantData(ctx context.Context) ([]models.PlantDataPoint, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "logged_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"plant_id": 1, "logged_at": 1, "greenness": 1})
	cur, err := r.db.Collection(readingsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find plant data: %w", err)
	}

	var readings []models.PlantReading
	if err := cur.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("decode plant data: %w", err)
	}
	out := make([]models.PlantDataPoint, len(readings))
	for i, rd := range readings {
		out[i] = models.PlantDataPoint{PlantID: rd.PlantID, LoggedAt: rd.LoggedAt, Greenness: rd.Greenness}
	}
	return out, nil
}

func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", what, err)
}
