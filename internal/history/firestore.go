package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

const (
	usersCollection       = "users"
	predictionsCollection = "predictions"
)

// FirestoreConfig selects the project and credentials. Empty credentials
// fall back to application default credentials.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

// FirestoreStore keeps records at users/{uid}/predictions/{id} and the
// counters on the users/{uid} document.
type FirestoreStore struct {
	client *firestore.Client
}

var _ Store = (*FirestoreStore)(nil)

type firestoreRecord struct {
	ID             string    `firestore:"id"`
	UserID         string    `firestore:"userId"`
	PlantName      string    `firestore:"plantName"`
	DiseaseName    string    `firestore:"diseaseName"`
	Confidence     float64   `firestore:"confidence"`
	Description    string    `firestore:"description"`
	Symptoms       []string  `firestore:"symptoms"`
	Treatments     []string  `firestore:"treatments"`
	PreventionTips []string  `firestore:"preventionTips"`
	IsHealthy      bool      `firestore:"isHealthy"`
	ClassIndex     int       `firestore:"classIndex"`
	Timestamp      time.Time `firestore:"timestamp"`
	ImageURL       string    `firestore:"imageUrl,omitempty"`
}

type firestoreUser struct {
	DisplayName      string     `firestore:"displayName,omitempty"`
	TotalPredictions int64      `firestore:"totalPredictions"`
	LastPredictionAt *time.Time `firestore:"lastPredictionAt,omitempty"`
	UpdatedAt        *time.Time `firestore:"updatedAt,omitempty"`
}

func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) user(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

func (s *FirestoreStore) predictions(userID string) *firestore.CollectionRef {
	return s.user(userID).Collection(predictionsCollection)
}

func (s *FirestoreStore) PutRecord(ctx context.Context, rec prediction.Record) error {
	if _, err := s.predictions(rec.UserID).Doc(rec.ID).Set(ctx, toFirestore(rec)); err != nil {
		return fmt.Errorf("failed to write prediction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetRecord(ctx context.Context, userID, id string) (prediction.Record, error) {
	snap, err := s.predictions(userID).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return prediction.Record{}, ErrNotFound
		}
		return prediction.Record{}, fmt.Errorf("failed to read prediction: %w", err)
	}
	return decodeRecord(snap)
}

func (s *FirestoreStore) DeleteRecord(ctx context.Context, userID, id string) error {
	if _, err := s.predictions(userID).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) QueryRecords(ctx context.Context, userID string, limit int) ([]prediction.Record, error) {
	q := s.predictions(userID).OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect(q.Documents(ctx))
}

func (s *FirestoreStore) ScanRecords(ctx context.Context, userID string) ([]prediction.Record, error) {
	return collect(s.predictions(userID).Documents(ctx))
}

// IncrementCounters uses a server-side increment when adding. Decrements run
// in a transaction so the total never drops below zero.
func (s *FirestoreStore) IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error {
	ref := s.user(userID)
	if delta > 0 {
		_, err := ref.Set(ctx, map[string]interface{}{
			"totalPredictions": firestore.Increment(delta),
			"lastPredictionAt": at.UTC(),
		}, firestore.MergeAll)
		if err != nil {
			return fmt.Errorf("failed to increment counters: %w", err)
		}
		return nil
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current int64
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var u firestoreUser
			if err := snap.DataTo(&u); err != nil {
				return err
			}
			current = u.TotalPredictions
		}

		next := current + delta
		if next < 0 {
			next = 0
		}
		return tx.Set(ref, map[string]interface{}{"totalPredictions": next}, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("failed to decrement counters: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	snap, err := s.user(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("failed to read user: %w", err)
	}

	var u firestoreUser
	if err := snap.DataTo(&u); err != nil {
		return Profile{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return Profile{
		UserID:      userID,
		DisplayName: u.DisplayName,
		UpdatedAt:   u.UpdatedAt,
		Counters: Counters{
			TotalPredictions: u.TotalPredictions,
			LastPredictionAt: u.LastPredictionAt,
		},
	}, nil
}

func (s *FirestoreStore) UpdateProfile(ctx context.Context, userID, displayName string, at time.Time) error {
	_, err := s.user(userID).Set(ctx, map[string]interface{}{
		"displayName": displayName,
		"updatedAt":   at.UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(usersCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func collect(iter *firestore.DocumentIterator) ([]prediction.Record, error) {
	defer iter.Stop()

	var out []prediction.Record
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query predictions: %w", err)
		}
		rec, err := decodeRecord(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord(snap *firestore.DocumentSnapshot) (prediction.Record, error) {
	var d firestoreRecord
	if err := snap.DataTo(&d); err != nil {
		return prediction.Record{}, fmt.Errorf("failed to decode prediction %s: %w", snap.Ref.ID, err)
	}
	if d.ID == "" {
		d.ID = snap.Ref.ID
	}
	return prediction.Record(d), nil
}

func toFirestore(rec prediction.Record) firestoreRecord {
	return firestoreRecord(rec)
}
