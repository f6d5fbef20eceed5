package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

// PostgresStore keeps records in the predictions table and counters in
// user_profiles. The schema lives in migrations/.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `id, user_id, plant_name, disease_name, confidence, description,
	symptoms, treatments, prevention_tips, is_healthy, class_index, created_at, image_url`

func (s *PostgresStore) PutRecord(ctx context.Context, rec prediction.Record) error {
	query := `
		INSERT INTO predictions (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.PlantName,
		rec.DiseaseName,
		rec.Confidence,
		rec.Description,
		nonNil(rec.Symptoms),
		nonNil(rec.Treatments),
		nonNil(rec.PreventionTips),
		rec.IsHealthy,
		rec.ClassIndex,
		rec.Timestamp,
		rec.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, userID, id string) (prediction.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM predictions WHERE user_id = $1 AND id = $2`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return prediction.Record{}, ErrNotFound
		}
		return prediction.Record{}, fmt.Errorf("failed to get prediction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, userID, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM predictions WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) QueryRecords(ctx context.Context, userID string, limit int) ([]prediction.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM predictions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) ScanRecords(ctx context.Context, userID string) ([]prediction.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM predictions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan predictions: %w", err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error {
	var last *time.Time
	if delta > 0 {
		t := at.UTC()
		last = &t
	}

	query := `
		INSERT INTO user_profiles (user_id, total_predictions, last_prediction_at)
		VALUES ($1, GREATEST($2::bigint, 0), $3)
		ON CONFLICT (user_id) DO UPDATE SET
			total_predictions = GREATEST(user_profiles.total_predictions + $2::bigint, 0),
			last_prediction_at = COALESCE($3, user_profiles.last_prediction_at)`

	if _, err := s.pool.Exec(ctx, query, userID, delta, last); err != nil {
		return fmt.Errorf("failed to update counters: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	query := `
		SELECT user_id, display_name, total_predictions, last_prediction_at, updated_at
		FROM user_profiles
		WHERE user_id = $1`

	var p Profile
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.DisplayName,
		&p.TotalPredictions,
		&p.LastPredictionAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID, displayName string, at time.Time) error {
	query := `
		INSERT INTO user_profiles (user_id, display_name, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, query, userID, displayName, at.UTC()); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

func scanRecord(row pgx.Row) (prediction.Record, error) {
	var rec prediction.Record
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.PlantName,
		&rec.DiseaseName,
		&rec.Confidence,
		&rec.Description,
		&rec.Symptoms,
		&rec.Treatments,
		&rec.PreventionTips,
		&rec.IsHealthy,
		&rec.ClassIndex,
		&rec.Timestamp,
		&rec.ImageURL,
	)
	if err != nil {
		return prediction.Record{}, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

func collectRows(rows pgx.Rows) ([]prediction.Record, error) {
	defer rows.Close()

	var out []prediction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
