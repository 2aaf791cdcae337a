package receipt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgerrors "paypipe/pkg/errors"
)

type Repository interface {
	Insert(ctx context.Context, receipt Receipt) error
	Get(ctx context.Context, id string) (Receipt, error)
	ListByPayment(ctx context.Context, paymentID string) ([]Receipt, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection("receipts"),
	}
}

func (r *MongoDBRepository) Insert(ctx context.Context, receipt Receipt) error {
	if _, err := r.collection.InsertOne(ctx, receipt); err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) Get(ctx context.Context, id string) (Receipt, error) {
	var receipt Receipt
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&receipt)
	if err == mongo.ErrNoDocuments {
		return Receipt{}, pkgerrors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("receipt %s not found", id))
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to find receipt: %w", err)
	}
	return receipt, nil
}

func (r *MongoDBRepository) ListByPayment(ctx context.Context, paymentID string) ([]Receipt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generated_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"payment_id": paymentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find receipts: %w", err)
	}
	defer cursor.Close(ctx)

	var receipts []Receipt
	if err := cursor.All(ctx, &receipts); err != nil {
		return nil, fmt.Errorf("failed to decode receipts: %w", err)
	}
	return receipts, nil
}

// MemoryRepository keeps receipts in process memory; used in tests and when
// MongoDB is not configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	receipts map[string]Receipt
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{receipts: make(map[string]Receipt)}
}

func (r *MemoryRepository) Insert(_ context.Context, receipt Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[receipt.ID] = receipt
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return Receipt{}, pkgerrors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("receipt %s not found", id))
	}
	return receipt, nil
}

func (r *MemoryRepository) ListByPayment(_ context.Context, paymentID string) ([]Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var receipts []Receipt
	for _, receipt := range r.receipts {
		if receipt.PaymentID == paymentID {
			receipts = append(receipts, receipt)
		}
	}
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].GeneratedAt.After(receipts[j].GeneratedAt)
	})
	return receipts, nil
}
