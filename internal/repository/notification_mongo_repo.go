package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casedesk/internal/model"
	"casedesk/pkg/metrics"
	"casedesk/pkg/otel"
	"casedesk/pkg/util"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const notificationCollection = "notifications"

// MongoStore implements Store on a MongoDB collection. Expiry is native: a
// TTL index on createdAt removes records after model.RetentionPeriod.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewMongoStore(client *mongo.Client, db *mongo.Database, logger *zap.Logger) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   db.Collection(notificationCollection),
		logger: logger,
	}
}

// EnsureIndexes creates the feed indexes and the createdAt TTL index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "isRead", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("owner_isRead_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("owner_createdAt"),
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().
				SetName("createdAt_ttl").
				SetExpireAfterSeconds(int32(model.RetentionPeriod / time.Second)),
		},
	}

	names, err := s.coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}
	s.logger.Info("Notification indexes ensured", zap.Strings("indexes", names))
	return nil
}

func (s *MongoStore) Create(ctx context.Context, in model.NotificationInput) (*model.Notification, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	n := model.NewNotification(in, uuid.NewString(), mongoTimestamp())
	s.logger.Debug("Inserting notification",
		zap.String("owner", n.Owner),
		zap.String("category", string(n.Category)),
	)

	err = s.trace(ctx, "insert", func(ctx context.Context) error {
		_, err := s.coll.InsertOne(ctx, n)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to insert notification",
			zap.String("owner", n.Owner),
			zap.Error(err),
		)
		return nil, s.wrap("insert notification", err)
	}

	s.logger.Info("Notification inserted successfully",
		zap.String("id", n.ID),
		zap.String("owner", n.Owner),
	)
	return n, nil
}

func (s *MongoStore) CreateMany(ctx context.Context, ins []model.NotificationInput) ([]*model.Notification, error) {
	valid, err := model.ValidateBatch(ins)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return []*model.Notification{}, nil
	}

	now := mongoTimestamp()
	out := make([]*model.Notification, 0, len(valid))
	docs := make([]interface{}, 0, len(valid))
	for _, in := range valid {
		n := model.NewNotification(in, uuid.NewString(), now)
		out = append(out, n)
		docs = append(docs, n)
	}

	err = s.trace(ctx, "insert_many", func(ctx context.Context) error {
		err := s.client.UseSession(ctx, func(sc mongo.SessionContext) error {
			_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
				return s.coll.InsertMany(txCtx, docs)
			})
			return err
		})
		if isTransactionUnsupported(err) {
			s.logger.Debug("Transactions unsupported, falling back to ordered insert")
			return s.insertManyOrRemove(ctx, out, docs)
		}
		return err
	})
	if err != nil {
		s.logger.Error("Failed to bulk insert notifications",
			zap.Int("count", len(docs)),
			zap.Error(err),
		)
		return nil, s.wrap("bulk insert notifications", err)
	}

	s.logger.Info("Notifications bulk inserted successfully", zap.Int("count", len(out)))
	return out, nil
}

// insertManyOrRemove is the standalone-server path: an ordered insert whose
// partial result is removed again when it fails.
func (s *MongoStore) insertManyOrRemove(ctx context.Context, out []*model.Notification, docs []interface{}) error {
	_, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}

	ids := make([]string, 0, len(out))
	for _, n := range out {
		ids = append(ids, n.ID)
	}
	if _, delErr := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); delErr != nil {
		s.logger.Error("Failed to remove partial batch", zap.Error(delErr))
	}
	return err
}

func (s *MongoStore) Find(ctx context.Context, owner string, filter model.Filter, page model.Page) ([]*model.Notification, int64, error) {
	page = page.Normalize()
	query := mongoFilter(owner, filter)

	var (
		total int64
		items = []*model.Notification{}
	)
	err := s.trace(ctx, "find", func(ctx context.Context) error {
		var err error
		total, err = s.coll.CountDocuments(ctx, query)
		if err != nil {
			return err
		}

		opts := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
			SetSkip(int64(page.Offset)).
			SetLimit(int64(page.Limit))
		cursor, err := s.coll.Find(ctx, query, opts)
		if err != nil {
			return err
		}
		return cursor.All(ctx, &items)
	})
	if err != nil {
		s.logger.Error("Failed to query notifications",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return nil, 0, s.wrap("find notifications", err)
	}
	return items, total, nil
}

func (s *MongoStore) Count(ctx context.Context, owner string, filter model.Filter) (int64, error) {
	var total int64
	err := s.trace(ctx, "count", func(ctx context.Context) error {
		var err error
		total, err = s.coll.CountDocuments(ctx, mongoFilter(owner, filter))
		return err
	})
	if err != nil {
		return 0, s.wrap("count notifications", err)
	}
	return total, nil
}

func (s *MongoStore) UpdateOneByOwner(ctx context.Context, id, owner string, patch model.Patch) (*model.Notification, error) {
	query := bson.M{"_id": id, "owner": owner}

	var n model.Notification
	err := s.trace(ctx, "find_one_and_update", func(ctx context.Context) error {
		update := mongoUpdate(patch)
		if update == nil {
			return s.coll.FindOne(ctx, query).Decode(&n)
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		return s.coll.FindOneAndUpdate(ctx, query, update, opts).Decode(&n)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to update notification",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, s.wrap("update notification", err)
	}
	return &n, nil
}

func (s *MongoStore) UpdateManyByOwner(ctx context.Context, owner string, filter model.Filter, patch model.Patch) (int64, error) {
	update := mongoUpdate(patch)
	if update == nil {
		return s.Count(ctx, owner, filter)
	}

	var matched int64
	err := s.trace(ctx, "update_many", func(ctx context.Context) error {
		res, err := s.coll.UpdateMany(ctx, mongoFilter(owner, filter), update)
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update notifications",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return 0, s.wrap("update notifications", err)
	}

	s.logger.Info("Notifications updated",
		zap.String("owner", owner),
		zap.Int64("matched", matched),
	)
	return matched, nil
}

func (s *MongoStore) DeleteOneByOwner(ctx context.Context, id, owner string) (*model.Notification, error) {
	var n model.Notification
	err := s.trace(ctx, "find_one_and_delete", func(ctx context.Context) error {
		return s.coll.FindOneAndDelete(ctx, bson.M{"_id": id, "owner": owner}).Decode(&n)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to delete notification",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, s.wrap("delete notification", err)
	}
	return &n, nil
}

func (s *MongoStore) DeleteManyByOwner(ctx context.Context, owner string, filter model.Filter) (int64, error) {
	var deleted int64
	err := s.trace(ctx, "delete_many", func(ctx context.Context) error {
		res, err := s.coll.DeleteMany(ctx, mongoFilter(owner, filter))
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to delete notifications",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return 0, s.wrap("delete notifications", err)
	}

	s.logger.Info("Notifications deleted",
		zap.String("owner", owner),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

func (s *MongoStore) trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	err := otel.TraceDB(ctx, "mongodb", operation, notificationCollection, fn)
	metrics.RecordDBQueryDuration(operation, notificationCollection, time.Since(start))
	return err
}

func (s *MongoStore) wrap(op string, err error) error {
	if util.IsStoreUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func mongoFilter(owner string, filter model.Filter) bson.M {
	query := bson.M{"owner": owner}
	if filter.IsRead != nil {
		query["isRead"] = *filter.IsRead
	}
	if filter.Category != nil {
		query["type"] = string(*filter.Category)
	}
	return query
}

// mongoUpdate builds a pipeline update so updatedAt only moves when isRead
// actually changes. Returns nil for an empty patch.
func mongoUpdate(patch model.Patch) mongo.Pipeline {
	if patch.IsRead == nil {
		return nil
	}
	isRead := *patch.IsRead
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "updatedAt", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$isRead", isRead}}},
				"$updatedAt",
				mongoTimestamp(),
			}}}},
			{Key: "isRead", Value: isRead},
		}}},
	}
}

func isTransactionUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 20 || cmdErr.Name == "IllegalOperation"
	}
	return false
}

// mongoTimestamp truncates to the millisecond precision of BSON dates.
func mongoTimestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
