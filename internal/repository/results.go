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

const (
	historyCollection = "similarity_history"
	runsCollection    = "run_reports"
)

type ResultsRepository struct {
	mongoRepo *MongoRepository
}

func NewResultsRepository(mongoRepo *MongoRepository) *ResultsRepository {
	return &ResultsRepository{
		mongoRepo: mongoRepo,
	}
}

// SaveRecords appends one document per similarity entry
func (r *ResultsRepository) SaveRecords(ctx context.Context, records []models.HistoryRecord) error {
	now := time.Now()
	docs := make([]interface{}, 0, len(records))
	for i := range records {
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		docs = append(docs, records[i])
	}

	if err := r.mongoRepo.InsertMany(ctx, historyCollection, docs); err != nil {
		return fmt.Errorf("failed to insert history records: %w", err)
	}

	return nil
}

// RecordsFor returns every record in which id is either side, newest first
func (r *ResultsRepository) RecordsFor(ctx context.Context, id string) ([]models.HistoryRecord, error) {
	filter := bson.M{"$or": bson.A{bson.M{"mainId": id}, bson.M{"subId": id}}}
	return r.findRecords(ctx, filter, -1)
}

// RecordsForCorpus returns the records of the most recent completed run
// over a corpus
func (r *ResultsRepository) RecordsForCorpus(ctx context.Context, corpusID string) ([]models.HistoryRecord, error) {
	run, err := r.latestRun(ctx, bson.M{"corpusId": corpusID, "status": models.RunCompleted})
	if err != nil {
		return nil, err
	}
	if run == nil {
		return []models.HistoryRecord{}, nil
	}
	filter := bson.M{"corpusId": corpusID, "runId": run.RunID}
	return r.findRecords(ctx, filter, 1)
}

func (r *ResultsRepository) findRecords(ctx context.Context, filter bson.M, order int) ([]models.HistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}})

	cursor, err := r.mongoRepo.FindMany(ctx, historyCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find history records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]models.HistoryRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode history records: %w", err)
	}

	return records, nil
}

func (r *ResultsRepository) InsertRunReport(ctx context.Context, report *models.RunReport) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	err := r.mongoRepo.InsertOne(ctx, runsCollection, report)
	if err != nil {
		return fmt.Errorf("failed to insert run report: %w", err)
	}

	return nil
}

func (r *ResultsRepository) GetLatestRunByCorpusID(ctx context.Context, corpusID string) (*models.RunReport, error) {
	return r.latestRun(ctx, bson.M{"corpusId": corpusID})
}

func (r *ResultsRepository) latestRun(ctx context.Context, filter bson.M) (*models.RunReport, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var report models.RunReport
	err := r.mongoRepo.FindOne(ctx, runsCollection, filter, opts).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run report: %w", err)
	}

	return &report, nil
}
