package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bar-pos/internal/apperr"
	"bar-pos/internal/auth"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
	"bar-pos/internal/remotestore"
)

type businessDoc struct {
	ID       string          `bson:"_id"`
	NameKey  string          `bson:"nameKey"`
	Business models.Business `bson:"business"`
}

type userDoc struct {
	ID           string      `bson:"_id"`
	BusinessID   string      `bson:"businessId"`
	NameKey      string      `bson:"nameKey"`
	PasswordHash string      `bson:"passwordHash"`
	User         models.User `bson:"user"`
}

type snapshotDoc struct {
	BusinessID string            `bson:"_id"`
	Products   []models.Product  `bson:"products"`
	Sales      []models.Sale     `bson:"sales"`
	AuditLogs  []models.AuditLog `bson:"auditLogs"`
	LastSync   time.Time         `bson:"lastSync"`
}

// MongoRepository keeps one document per tenant snapshot, the shape
// terminals sync against.
type MongoRepository struct {
	client     *mongo.Client
	businesses *mongo.Collection
	users      *mongo.Collection
	snapshots  *mongo.Collection
}

var _ remotestore.Repository = (*MongoRepository)(nil)

// ConnectMongo dials uri, checks the server and creates the indexes.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	r := &MongoRepository{
		client:     client,
		businesses: db.Collection("businesses"),
		users:      db.Collection("users"),
		snapshots:  db.Collection("snapshots"),
	}
	if _, err := r.businesses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "nameKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("create business index: %w", err)
	}
	if _, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "nameKey", Value: 1}}},
		{Keys: bson.D{{Key: "businessId", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}
	logger.LogInfo("connected to MongoDB database %q", database)
	return r, nil
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// CreateTenant is three inserts; the unique name index makes the first one
// the point of no return.
func (m *MongoRepository) CreateTenant(ctx context.Context, b models.Business, owner auth.Account) error {
	_, err := m.businesses.InsertOne(ctx, businessDoc{ID: b.ID, NameKey: remotestore.NameKey(b.Name), Business: b})
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("business %q already exists", b.Name)
	}
	if err != nil {
		return err
	}
	if err := m.SaveUser(ctx, owner); err != nil {
		return err
	}
	_, err = m.snapshots.InsertOne(ctx, snapshotDoc{
		BusinessID: b.ID,
		Products:   []models.Product{},
		Sales:      []models.Sale{},
		AuditLogs:  []models.AuditLog{},
		LastSync:   b.CreatedAt,
	})
	return err
}

func (m *MongoRepository) findBusiness(ctx context.Context, filter bson.M, what string) (models.Business, error) {
	var doc businessDoc
	err := m.businesses.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Business{}, apperr.NotFound("business %s", what)
	}
	return doc.Business, err
}

func (m *MongoRepository) Business(ctx context.Context, id string) (models.Business, error) {
	return m.findBusiness(ctx, bson.M{"_id": id}, id)
}

func (m *MongoRepository) BusinessByName(ctx context.Context, name string) (models.Business, error) {
	return m.findBusiness(ctx, bson.M{"nameKey": remotestore.NameKey(name)}, fmt.Sprintf("%q", name))
}

func (m *MongoRepository) Businesses(ctx context.Context) ([]models.Business, error) {
	cursor, err := m.businesses.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []businessDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Business, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Business)
	}
	return out, nil
}

func (m *MongoRepository) SaveBusiness(ctx context.Context, b models.Business) error {
	doc := businessDoc{ID: b.ID, NameKey: remotestore.NameKey(b.Name), Business: b}
	_, err := m.businesses.ReplaceOne(ctx, bson.M{"_id": b.ID}, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("business %q already exists", b.Name)
	}
	return err
}

func (m *MongoRepository) User(ctx context.Context, id string) (auth.Account, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return auth.Account{}, apperr.NotFound("user %s", id)
	}
	if err != nil {
		return auth.Account{}, err
	}
	return auth.Account{User: doc.User, PasswordHash: doc.PasswordHash}, nil
}

func (m *MongoRepository) findUsers(ctx context.Context, filter bson.M) ([]auth.Account, error) {
	cursor, err := m.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]auth.Account, 0, len(docs))
	for _, d := range docs {
		out = append(out, auth.Account{User: d.User, PasswordHash: d.PasswordHash})
	}
	return out, nil
}

func (m *MongoRepository) UsersByName(ctx context.Context, name string) ([]auth.Account, error) {
	return m.findUsers(ctx, bson.M{"nameKey": remotestore.NameKey(name)})
}

func (m *MongoRepository) Users(ctx context.Context, businessID string) ([]auth.Account, error) {
	if businessID == "" {
		return m.findUsers(ctx, bson.M{})
	}
	return m.findUsers(ctx, bson.M{"businessId": businessID})
}

func (m *MongoRepository) SaveUser(ctx context.Context, a auth.Account) error {
	doc := userDoc{
		ID:           a.ID,
		BusinessID:   a.BusinessID,
		NameKey:      remotestore.NameKey(a.Name),
		PasswordHash: a.PasswordHash,
		User:         a.User.Sanitized(),
	}
	_, err := m.users.ReplaceOne(ctx, bson.M{"_id": a.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := m.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("user %s", id)
	}
	return nil
}

func (m *MongoRepository) Snapshot(ctx context.Context, businessID string) (models.Snapshot, error) {
	var doc snapshotDoc
	err := m.snapshots.FindOne(ctx, bson.M{"_id": businessID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Snapshot{BusinessID: businessID}, nil
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		BusinessID: doc.BusinessID,
		Products:   doc.Products,
		Sales:      doc.Sales,
		AuditLogs:  doc.AuditLogs,
		LastSync:   doc.LastSync,
	}, nil
}

// ensureSnapshot creates an empty tenant document if none exists.
func (m *MongoRepository) ensureSnapshot(ctx context.Context, businessID string) error {
	_, err := m.snapshots.UpdateOne(ctx, bson.M{"_id": businessID}, bson.M{
		"$setOnInsert": bson.M{
			"products":  bson.A{},
			"sales":     bson.A{},
			"auditLogs": bson.A{},
		},
	}, options.Update().SetUpsert(true))
	return err
}

func (m *MongoRepository) ReplaceProducts(ctx context.Context, businessID string, products []models.Product, at time.Time) error {
	if products == nil {
		products = []models.Product{}
	}
	_, err := m.snapshots.UpdateOne(ctx, bson.M{"_id": businessID}, bson.M{
		"$set": bson.M{"products": products, "lastSync": at},
	}, options.Update().SetUpsert(true))
	return err
}

// push appends v to field unless an element with the same id is there.
func (m *MongoRepository) push(ctx context.Context, businessID, field, id string, v any, at time.Time) (bool, error) {
	if err := m.ensureSnapshot(ctx, businessID); err != nil {
		return false, err
	}
	res, err := m.snapshots.UpdateOne(ctx,
		bson.M{"_id": businessID, field + ".id": bson.M{"$ne": id}},
		bson.M{"$push": bson.M{field: v}, "$set": bson.M{"lastSync": at}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (m *MongoRepository) AppendSale(ctx context.Context, businessID string, s models.Sale, at time.Time) (bool, error) {
	return m.push(ctx, businessID, "sales", s.ID, s, at)
}

func (m *MongoRepository) AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog, at time.Time) (bool, error) {
	return m.push(ctx, businessID, "auditLogs", l.ID, l, at)
}
