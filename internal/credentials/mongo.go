package credentials

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type senderDocument struct {
	Email       string `bson:"email"`
	AppPassword string `bson:"appPassword"`
}

type mongoFinder interface {
	FindOne(ctx context.Context, filter any) senderDecoder
}

type senderDecoder interface {
	Decode(v any) error
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any) senderDecoder {
	return c.coll.FindOne(ctx, filter)
}

// MongoStore reads senders from a collection of {email, appPassword} documents.
type MongoStore struct {
	senders mongoFinder
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{senders: mongoCollection{coll: db.Collection(collection)}}
}

func (s *MongoStore) Resolve(ctx context.Context, senderId string) (Credentials, error) {
	var doc senderDocument
	err := s.senders.FindOne(ctx, bson.M{"email": senderId}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Credentials{}, ErrSenderNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to query sender: %w", err)
	}

	return Credentials{LoginIdentity: doc.Email, Secret: doc.AppPassword}, nil
}
