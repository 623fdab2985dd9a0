package repository

import (
	"context"
	"fmt"

	mongoInfra "github.com/RishiKendai/twinscan/internal/infra/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(client *mongoInfra.Client) *MongoRepository {
	return &MongoRepository{
		db: client.Database,
	}
}

func (r *MongoRepository) InsertOne(ctx context.Context, collection string, document interface{}, opts ...*options.InsertOneOptions) error {
	_, err := r.db.Collection(collection).InsertOne(ctx, document, opts...)
	return err
}

func (r *MongoRepository) InsertMany(ctx context.Context, collection string, documents []interface{}, opts ...*options.InsertManyOptions) error {
	if len(documents) == 0 {
		return nil
	}
	_, err := r.db.Collection(collection).InsertMany(ctx, documents, opts...)
	return err
}

func (r *MongoRepository) UpsertOne(ctx context.Context, collection string, filter, document interface{}) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.db.Collection(collection).ReplaceOne(ctx, filter, document, opts)
	return err
}

func (r *MongoRepository) FindOne(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	return r.db.Collection(collection).FindOne(ctx, filter, opts...)
}

func (r *MongoRepository) FindMany(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return r.db.Collection(collection).Find(ctx, filter, opts...)
}

func (r *MongoRepository) CountDocuments(ctx context.Context, collection string, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return r.db.Collection(collection).CountDocuments(ctx, filter, opts...)
}

func (r *MongoRepository) Distinct(ctx context.Context, collection, field string, filter interface{}) ([]interface{}, error) {
	return r.db.Collection(collection).Distinct(ctx, field, filter)
}

// EnsureIndexes creates the lookup indexes the repositories query by
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		sourcesCollection: {
			{Keys: bson.D{{Key: "corpusId", Value: 1}, {Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		historyCollection: {
			{Keys: bson.D{{Key: "mainId", Value: 1}}},
			{Keys: bson.D{{Key: "subId", Value: 1}}},
			{Keys: bson.D{{Key: "corpusId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		runsCollection: {
			{Keys: bson.D{{Key: "corpusId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := r.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func (r *MongoRepository) GetCollection(collectionName string) *mongo.Collection {
	return r.db.Collection(collectionName)
}
