package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cardgate/account"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultDatabase   = "rfid"
	defaultCollection = "rlab"
)

// Field names are shared with collections written by earlier deployments.
const (
	fieldCards    = "CARDS"
	fieldLevel    = "ACCESS"
	fieldLegacyID = "ID"
	fieldName     = "NAME"
	fieldObjectID = "_id"
)

// Mongo implements account.Store on a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger
}

type accountDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Creator   string             `bson:"CREATOR"`
	Cards     []string           `bson:"CARDS"`
	Name      string             `bson:"NAME"`
	Level     int                `bson:"ACCESS"`
	ExpiresAt time.Time          `bson:"EXPIRE"`
	Hash      *string            `bson:"HASH"`
	Active    bool               `bson:"ACTIVE"`
}

// OpenMongo connects to MongoDB, verifies connectivity with a ping, ensures
// the card index exists and migrates legacy single-card records.
func OpenMongo(ctx context.Context, cfg Config, log zerolog.Logger) (*Mongo, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Str("uri", cfg.URI).Str("collection", cfg.Collection).Msg("Connecting to account store")
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	m := &Mongo{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		log:    log,
	}

	if err := m.migrate(connectCtx); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}

	_, err = m.coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldCards, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("create card index: %w", err)
	}

	return m, nil
}

// migrate rewrites records that still carry a single card in the legacy ID
// field into the card list format.
func (m *Mongo) migrate(ctx context.Context) error {
	cur, err := m.coll.Find(ctx, bson.M{fieldLegacyID: bson.M{"$exists": true}})
	if err != nil {
		return fmt.Errorf("find legacy records: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var legacy struct {
			ID   primitive.ObjectID `bson:"_id"`
			Card string             `bson:"ID"`
		}
		if err := cur.Decode(&legacy); err != nil {
			return fmt.Errorf("decode legacy record: %w", err)
		}
		_, err := m.coll.UpdateOne(ctx,
			bson.M{fieldObjectID: legacy.ID},
			bson.M{
				"$set":   bson.M{fieldCards: bson.A{legacy.Card}},
				"$unset": bson.M{fieldLegacyID: ""},
			})
		if err != nil {
			return fmt.Errorf("migrate record %s: %w", legacy.ID.Hex(), err)
		}
		m.log.Info().Str("card", legacy.Card).Msg("Migrated legacy account record")
	}
	return cur.Err()
}

// FindByCard implements account.Store.FindByCard.
func (m *Mongo) FindByCard(ctx context.Context, card string) (*account.Account, error) {
	var doc accountDoc
	if err := m.coll.FindOne(ctx, bson.M{fieldCards: card}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("find account by card: %w", err)
	}
	return doc.toAccount(), nil
}

// FindAll implements account.Store.FindAll.
func (m *Mongo) FindAll(ctx context.Context) ([]*account.Account, error) {
	cur, err := m.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: fieldName, Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find accounts: %w", err)
	}
	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	all := make([]*account.Account, 0, len(docs))
	for i := range docs {
		all = append(all, docs[i].toAccount())
	}
	return all, nil
}

// Save implements account.Store.Save.
func (m *Mongo) Save(ctx context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	doc := fromAccount(a)

	if a.ID == "" {
		res, err := m.coll.InsertOne(ctx, doc)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return account.ErrCardInUse
			}
			return fmt.Errorf("insert account: %w", err)
		}
		if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
			a.ID = oid.Hex()
		}
		m.log.Info().Str("creator", a.Creator).Str("account", a.String()).Msg("Account added")
		return nil
	}

	oid, err := primitive.ObjectIDFromHex(a.ID)
	if err != nil {
		return fmt.Errorf("account id %q: %w", a.ID, err)
	}
	doc.ID = oid
	_, err = m.coll.ReplaceOne(ctx, bson.M{fieldObjectID: oid}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return account.ErrCardInUse
		}
		return fmt.Errorf("replace account: %w", err)
	}
	m.log.Info().Str("account", a.String()).Msg("Account updated")
	return nil
}

// Delete implements account.Store.Delete.
func (m *Mongo) Delete(ctx context.Context, a *account.Account) error {
	oid, err := primitive.ObjectIDFromHex(a.ID)
	if err != nil {
		return fmt.Errorf("account id %q: %w", a.ID, err)
	}
	res, err := m.coll.DeleteOne(ctx, bson.M{fieldObjectID: oid})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return account.ErrNotFound
	}
	m.log.Info().Str("account", a.String()).Msg("Account deleted")
	return nil
}

// ExistsAny implements account.Store.ExistsAny.
func (m *Mongo) ExistsAny(ctx context.Context) (bool, error) {
	return m.exists(ctx, bson.M{})
}

// ExistsAnyWithLevel implements account.Store.ExistsAnyWithLevel.
func (m *Mongo) ExistsAnyWithLevel(ctx context.Context, level account.Level) (bool, error) {
	return m.exists(ctx, bson.M{fieldLevel: int(level)})
}

func (m *Mongo) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := m.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	return n > 0, nil
}

// Wipe implements account.Store.Wipe.
func (m *Mongo) Wipe(ctx context.Context) error {
	if err := m.coll.Drop(ctx); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	m.log.Warn().Msg("Account collection dropped")
	return nil
}

// Close implements account.Store.Close.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func fromAccount(a *account.Account) accountDoc {
	doc := accountDoc{
		Creator:   a.Creator,
		Cards:     a.Cards,
		Name:      a.Name,
		Level:     int(a.Level),
		ExpiresAt: a.ExpiresAt,
		Active:    a.Active,
	}
	if a.HasPassword() {
		hash := a.PasswordHash
		doc.Hash = &hash
	}
	return doc
}

func (d *accountDoc) toAccount() *account.Account {
	a := &account.Account{
		ID:        d.ID.Hex(),
		Creator:   d.Creator,
		Cards:     d.Cards,
		Name:      d.Name,
		Level:     account.Level(d.Level),
		ExpiresAt: d.ExpiresAt,
		Active:    d.Active,
	}
	if d.Hash != nil {
		a.PasswordHash = *d.Hash
	}
	return a
}
