package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/twinscan/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sourcesCollection = "source_files"

type SourcesRepository struct {
	mongoRepo *MongoRepository
}

func NewSourcesRepository(mongoRepo *MongoRepository) *SourcesRepository {
	return &SourcesRepository{
		mongoRepo: mongoRepo,
	}
}

// UpsertSource stores a file, replacing an earlier upload with the same
// name in the same corpus
func (r *SourcesRepository) UpsertSource(ctx context.Context, file *models.SourceFile) error {
	file.CreatedAt = time.Now()
	filter := bson.M{"corpusId": file.CorpusID, "name": file.Name}
	if err := r.mongoRepo.UpsertOne(ctx, sourcesCollection, filter, file); err != nil {
		return fmt.Errorf("failed to upsert source file: %w", err)
	}

	return nil
}

// GetSourcesByCorpusID returns the files of a corpus ordered by name
func (r *SourcesRepository) GetSourcesByCorpusID(ctx context.Context, corpusID string) ([]*models.SourceFile, error) {
	filter := bson.M{"corpusId": corpusID}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, sourcesCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find source files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []*models.SourceFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("failed to decode source files: %w", err)
	}

	return files, nil
}

func (r *SourcesRepository) GetSource(ctx context.Context, corpusID, name string) (*models.SourceFile, error) {
	filter := bson.M{"corpusId": corpusID, "name": name}

	var file models.SourceFile
	err := r.mongoRepo.FindOne(ctx, sourcesCollection, filter).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find source file: %w", err)
	}

	return &file, nil
}

func (r *SourcesRepository) CountSourcesByCorpusID(ctx context.Context, corpusID string) (int64, error) {
	filter := bson.M{"corpusId": corpusID}

	count, err := r.mongoRepo.CountDocuments(ctx, sourcesCollection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count source files: %w", err)
	}

	return count, nil
}
