package pointerstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cartsync/internal/adapter"
)

// DefaultCollection holds one document per customer key.
const DefaultCollection = "cart_pointers"

// Firestore stores pointers as documents {cartId, updatedAt}.
// The document id is a SHA-256 of the customer key so emails never appear
// in document paths.
type Firestore struct {
	Client     *firestore.Client
	Collection string
}

type pointerDoc struct {
	CartID    string    `firestore:"cartId"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// NewFirestore connects to project. credentialsFile may be empty to use
// application default credentials.
func NewFirestore(ctx context.Context, projectID, collection, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return NewFirestoreWithClient(client, collection), nil
}

// NewFirestoreWithClient wraps an existing client.
func NewFirestoreWithClient(client *firestore.Client, collection string) *Firestore {
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	return &Firestore{Client: client, Collection: collection}
}

func (f *Firestore) GetPointer(ctx context.Context, key string) (string, bool, error) {
	if f == nil || f.Client == nil {
		return "", false, errors.New("pointerstore: firestore client is nil")
	}
	snap, err := f.col().Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get cart pointer: %w", err)
	}

	var doc pointerDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, fmt.Errorf("decode cart pointer: %w", err)
	}
	if doc.CartID == "" {
		return "", false, nil
	}
	return doc.CartID, true, nil
}

func (f *Firestore) SetPointer(ctx context.Context, key, cartID string) error {
	if f == nil || f.Client == nil {
		return errors.New("pointerstore: firestore client is nil")
	}
	_, err := f.col().Doc(docID(key)).Set(ctx, pointerDoc{
		CartID:    cartID,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("set cart pointer: %w", err)
	}
	return nil
}

// Close releases the client.
func (f *Firestore) Close() error {
	return f.Client.Close()
}

func (f *Firestore) col() *firestore.CollectionRef {
	return f.Client.Collection(f.Collection)
}

func docID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var _ adapter.PointerStore = (*Firestore)(nil)
