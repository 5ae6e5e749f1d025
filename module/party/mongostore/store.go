// Package mongostore is the Mongo-backed implementation of the party
// collaborator interfaces. The sync core only ever sees the interfaces
// in module/party; this package is the deployment we actually run.
package mongostore

import (
	"context"
	"time"

	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collParties  = "parties"
	collMembers  = "party_members"
	collUsers    = "users"
	collMessages = "party_messages"
)

type Store struct {
	DB *mongo.Database
}

func New(db *mongo.Database) *Store { return &Store{DB: db} }

func ptr[T any](v T) *T { return &v }

// EnsureIndexes creates the unique keys the membership model relies on:
// one party per code, one member record per (party, user).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.DB.Collection(collParties).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}
	_, err = s.DB.Collection(collMembers).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "party_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	return err
}

func (s *Store) ResolveCode(ctx context.Context, code string) (*party.Party, error) {
	var p party.Party
	err := s.DB.Collection(collParties).FindOne(ctx, bson.M{"code": code}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrPartyNotFound.WrapMsg("code", code)
	}
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, errs.ErrPartyInactive.WrapMsg("party", p.ID)
	}
	return &p, nil
}

func (s *Store) Get(ctx context.Context, partyID string) (*party.Party, error) {
	var p party.Party
	err := s.DB.Collection(collParties).FindOne(ctx, bson.M{"party_id": partyID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrPartyNotFound.WrapMsg("party", partyID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) MembershipsOf(ctx context.Context, userID string) ([]party.Member, error) {
	cur, err := s.DB.Collection(collMembers).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []party.Member
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Members(ctx context.Context, partyID string) ([]party.Member, error) {
	cur, err := s.DB.Collection(collMembers).Find(ctx, bson.M{"party_id": partyID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []party.Member
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) IsMember(ctx context.Context, partyID, userID string) (bool, error) {
	n, err := s.DB.Collection(collMembers).CountDocuments(ctx,
		bson.M{"party_id": partyID, "user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Join upserts the membership record. The upsert keyed on (party, user)
// makes a re-join a no-op, which is what keeps join idempotent upstream.
func (s *Store) Join(ctx context.Context, partyID, userID string) (bool, error) {
	now := time.Now()
	res, err := s.DB.Collection(collMembers).UpdateOne(ctx,
		bson.M{"party_id": partyID, "user_id": userID},
		bson.M{
			"$setOnInsert": bson.M{"joined_at": now},
			"$set":         bson.M{"last_seen": now},
		},
		&options.UpdateOptions{Upsert: ptr(true)},
	)
	if err != nil {
		return false, err
	}
	return res.UpsertedCount == 0, nil
}

func (s *Store) Leave(ctx context.Context, partyID, userID string) error {
	_, err := s.DB.Collection(collMembers).DeleteOne(ctx,
		bson.M{"party_id": partyID, "user_id": userID})
	return err
}

// DisplayName implements party.Directory against the users collection.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	var doc struct {
		Nickname string `bson:"nickname"`
	}
	err := s.DB.Collection(collUsers).FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return userID, nil
	}
	if err != nil {
		return userID, err
	}
	if doc.Nickname == "" {
		return userID, nil
	}
	return doc.Nickname, nil
}

// Append implements party.MessageLog.
func (s *Store) Append(ctx context.Context, msg party.ChatMessage) error {
	_, err := s.DB.Collection(collMessages).UpdateOne(ctx,
		bson.M{"msg_id": msg.ID},
		bson.M{"$setOnInsert": msg},
		&options.UpdateOptions{Upsert: ptr(true)},
	)
	return err
}
