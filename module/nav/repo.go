package nav

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repo persists the one authoritative navigation row per party.
type Repo interface {
	Upsert(ctx context.Context, st *State) error
	Get(ctx context.Context, partyID string) (*State, error)
}

const collNavStates = "nav_states"

type MongoRepo struct {
	DB *mongo.Database
}

func NewMongoRepo(db *mongo.Database) *MongoRepo { return &MongoRepo{DB: db} }

func ptr[T any](v T) *T { return &v }

// EnsureIndexes creates the unique party key; the version-guarded
// upsert depends on it to reject stale writers.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.DB.Collection(collNavStates).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "party_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Upsert writes the whole state keyed by party id. The $lt guard keeps
// a delayed write from an older version from clobbering a newer row.
func (r *MongoRepo) Upsert(ctx context.Context, st *State) error {
	_, err := r.DB.Collection(collNavStates).UpdateOne(ctx,
		bson.M{"party_id": st.PartyID, "version": bson.M{"$lt": st.Version}},
		bson.M{"$set": st},
		&options.UpdateOptions{Upsert: ptr(true)},
	)
	if mongo.IsDuplicateKeyError(err) {
		// a newer version already landed; last-writer-wins says drop ours
		return nil
	}
	return err
}

func (r *MongoRepo) Get(ctx context.Context, partyID string) (*State, error) {
	var st State
	err := r.DB.Collection(collNavStates).FindOne(ctx, bson.M{"party_id": partyID}).Decode(&st)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// MemoryRepo backs tests and solo mode.
type MemoryRepo struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{states: make(map[string]State)}
}

func (r *MemoryRepo) Upsert(_ context.Context, st *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.states[st.PartyID]; ok && cur.Version >= st.Version {
		return nil
	}
	r.states[st.PartyID] = *st
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, partyID string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[partyID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}
