package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghiac/ledgermind/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore is a MongoDB implementation of AuditStore.
type MongoDBStore struct {
	client     *mongo.Client
	database   *mongo.Database
	actions    *mongo.Collection
	compliance *mongo.Collection
}

// MongoDBStoreConfig holds configuration for MongoDBStore
type MongoDBStoreConfig struct {
	URI                  string // MongoDB connection URI (e.g., "mongodb://localhost:27017")
	Database             string // Database name (default: "ledgermind")
	ActionsCollection    string // default: "agent_actions"
	ComplianceCollection string // default: "compliance_audit"
}

// DefaultMongoDBStoreConfig returns default configuration
func DefaultMongoDBStoreConfig() MongoDBStoreConfig {
	return MongoDBStoreConfig{
		URI:                  "mongodb://localhost:27017",
		Database:             "ledgermind",
		ActionsCollection:    "agent_actions",
		ComplianceCollection: "compliance_audit",
	}
}

// NewMongoDBStore connects, pings and creates indexes.
func NewMongoDBStore(config MongoDBStoreConfig) (*MongoDBStore, error) {
	defaults := DefaultMongoDBStoreConfig()
	if config.URI == "" {
		config.URI = defaults.URI
	}
	if config.Database == "" {
		config.Database = defaults.Database
	}
	if config.ActionsCollection == "" {
		config.ActionsCollection = defaults.ActionsCollection
	}
	if config.ComplianceCollection == "" {
		config.ComplianceCollection = defaults.ComplianceCollection
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(config.Database)
	store := &MongoDBStore{
		client:     client,
		database:   database,
		actions:    database.Collection(config.ActionsCollection),
		compliance: database.Collection(config.ComplianceCollection),
	}

	if err := store.initIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return store, nil
}

// initIndexes creates the necessary indexes
func (s *MongoDBStore) initIndexes(ctx context.Context) error {
	_, err := s.actions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "requires_review", Value: 1}, {Key: "reviewed_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create action indexes: %w", err)
	}

	_, err = s.compliance.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create compliance index: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// InsertAction appends one action record.
func (s *MongoDBStore) InsertAction(ctx context.Context, a *model.AgentAction) error {
	if a == nil {
		return fmt.Errorf("action cannot be nil")
	}
	if _, err := s.actions.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to store action: %w", err)
	}
	return nil
}

// GetAction retrieves an action by ID.
func (s *MongoDBStore) GetAction(ctx context.Context, id string) (*model.AgentAction, error) {
	var a model.AgentAction
	err := s.actions.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return &a, nil
}

// ListActions returns recent actions, newest first.
func (s *MongoDBStore) ListActions(ctx context.Context, filter ActionFilter) ([]*model.AgentAction, error) {
	query := bson.M{}
	if filter.SessionID != "" {
		query["session_id"] = filter.SessionID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return s.findActions(ctx, query, opts)
}

// ListPendingReview returns unreviewed actions that require review, oldest first.
func (s *MongoDBStore) ListPendingReview(ctx context.Context, limit int) ([]*model.AgentAction, error) {
	query := bson.M{"requires_review": true, "reviewed_at": bson.M{"$exists": false}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findActions(ctx, query, opts)
}

func (s *MongoDBStore) findActions(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*model.AgentAction, error) {
	cursor, err := s.actions.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer cursor.Close(ctx)

	var actions []*model.AgentAction
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	return actions, nil
}

// MarkReviewed records the first review of an action.
func (s *MongoDBStore) MarkReviewed(ctx context.Context, id, reviewer string, at time.Time) (*model.AgentAction, error) {
	_, err := s.actions.UpdateOne(ctx,
		bson.M{"_id": id, "reviewed_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"reviewed_at": at, "reviewed_by": reviewer}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark action reviewed: %w", err)
	}
	return s.GetAction(ctx, id)
}

// ActionStats aggregates actions created at or after from (all when nil).
func (s *MongoDBStore) ActionStats(ctx context.Context, from *time.Time, topN int) (*model.ActionStats, error) {
	match := bson.M{}
	if from != nil {
		match["created_at"] = bson.M{"$gte": *from}
	}

	stats := &model.ActionStats{
		ByCategory: make(map[model.Category]int),
		ByRisk:     make(map[model.RiskLevel]int),
		TopTools:   []model.ToolUsage{},
	}

	var totals []struct {
		Total         int     `bson:"total"`
		Successful    int     `bson:"successful"`
		PendingReview int     `bson:"pending_review"`
		AvgExecution  float64 `bson:"avg_execution_ms"`
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"total":      bson.M{"$sum": 1},
			"successful": bson.M{"$sum": bson.M{"$cond": bson.A{"$success", 1, 0}}},
			"pending_review": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{"$requires_review", bson.M{"$eq": bson.A{bson.M{"$type": "$reviewed_at"}, "missing"}}}},
				1, 0,
			}}},
			"avg_execution_ms": bson.M{"$avg": "$execution_time_ms"},
		}}},
	}
	if err := s.aggregate(ctx, pipeline, &totals); err != nil {
		return nil, err
	}
	if len(totals) > 0 {
		stats.Total = totals[0].Total
		stats.Successful = totals[0].Successful
		stats.Failed = stats.Total - stats.Successful
		stats.PendingReview = totals[0].PendingReview
		stats.AvgExecutionMs = totals[0].AvgExecution
	}

	groups, err := s.groupBy(ctx, match, "$category", 0)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		stats.ByCategory[model.Category(g.ToolName)] = g.Count
	}

	groups, err = s.groupBy(ctx, match, "$risk_level", 0)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		stats.ByRisk[model.RiskLevel(g.ToolName)] = g.Count
	}

	if topN > 0 {
		top, err := s.groupBy(ctx, match, "$tool_name", topN)
		if err != nil {
			return nil, err
		}
		stats.TopTools = top
	}
	return stats, nil
}

// groupBy counts documents per field value, most frequent first.
func (s *MongoDBStore) groupBy(ctx context.Context, match bson.M, field string, limit int) ([]model.ToolUsage, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	var out []model.ToolUsage
	if err := s.aggregate(ctx, pipeline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoDBStore) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cursor, err := s.actions.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to aggregate actions: %w", err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode aggregation: %w", err)
	}
	return nil
}

// InsertCompliance appends a compliance audit entry.
func (s *MongoDBStore) InsertCompliance(ctx context.Context, e *model.ComplianceEntry) error {
	if e == nil {
		return fmt.Errorf("compliance entry cannot be nil")
	}
	if _, err := s.compliance.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to store compliance entry: %w", err)
	}
	return nil
}

// ListCompliance returns compliance entries, newest first.
func (s *MongoDBStore) ListCompliance(ctx context.Context, limit int) ([]*model.ComplianceEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.compliance.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query compliance entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.ComplianceEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode compliance entries: %w", err)
	}
	return entries, nil
}
