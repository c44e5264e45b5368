package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store manages the PostgreSQL connection pool and pgvector operations.
type Store struct {
	pool *pgxpool.Pool
}

// Session is one run of the recognizer over a frame source.
type Session struct {
	ID          uuid.UUID
	Source      string
	GallerySize int
	Frames      int
	Sightings   int
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Sighting is one recognized face in one frame.
type Sighting struct {
	ID            int64
	SessionID     uuid.UUID
	Source        string
	FrameIndex    int
	Label         string
	BestLabel     string
	Similarity    float64
	Threshold     float64
	Accepted      bool
	LowConfidence bool
	Box           types.Box
	Descriptor    descriptor.Descriptor
	SeenAt        time.Time
	// Distance is the cosine distance to the query face; only set by NearestSightings.
	Distance float64
}

// New connects to the database and ensures the schema exists.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the tables and the vector extension if they don't exist.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS watch_sessions (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			gallery_size INT NOT NULL,
			frames INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS sightings (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES watch_sessions(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			label TEXT NOT NULL,
			best_label TEXT NOT NULL,
			similarity DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			accepted BOOLEAN NOT NULL,
			low_confidence BOOLEAN NOT NULL,
			box INT[] NOT NULL,
			descriptor VECTOR(%d) NOT NULL,
			seen_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS sightings_session_id_idx ON sightings (session_id);
		CREATE INDEX IF NOT EXISTS sightings_label_idx ON sightings (label);
	`, descriptor.Dimension)
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// StartSession registers a new watch session and returns its id.
func (s *Store) StartSession(ctx context.Context, source string, gallerySize int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watch_sessions (id, source, gallery_size, started_at)
		VALUES ($1, $2, $3, NOW())
	`, id, source, gallerySize)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// FinishSession records the end of a session and how many frames it processed.
func (s *Store) FinishSession(ctx context.Context, id uuid.UUID, frames int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE watch_sessions SET finished_at = NOW(), frames = $2 WHERE id = $1
	`, id, frames)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// SightingsFromRecognitions converts the recognitions of one frame into sightings.
func SightingsFromRecognitions(sessionID uuid.UUID, frameIndex int, recs []pipeline.Recognition) []Sighting {
	out := make([]Sighting, 0, len(recs))
	for _, r := range recs {
		out = append(out, Sighting{
			SessionID:     sessionID,
			FrameIndex:    frameIndex,
			Label:         r.Label(),
			BestLabel:     r.Match.BestLabel,
			Similarity:    r.Match.BestSimilarity,
			Threshold:     r.Match.Threshold,
			Accepted:      r.Match.Accepted,
			LowConfidence: r.Match.LowConfidence,
			Box:           types.BoxFromRect(r.Region),
			Descriptor:    r.Descriptor,
		})
	}
	return out
}

// InsertSightings saves sightings in one transaction.
func (s *Store) InsertSightings(ctx context.Context, sightings []Sighting) error {
	if len(sightings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, st := range sightings {
		if !st.Descriptor.Valid() {
			return fmt.Errorf("sighting %q: descriptor has %d values, want %d", st.Label, len(st.Descriptor), descriptor.Dimension)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO sightings (session_id, frame_index, label, best_label, similarity, threshold,
				accepted, low_confidence, box, descriptor, seen_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		`, st.SessionID, st.FrameIndex, st.Label, st.BestLabel, st.Similarity, st.Threshold,
			st.Accepted, st.LowConfidence, boxToArray(st.Box), pgvector.NewVector(st.Descriptor))
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListSessions returns every session, newest first, with its sighting count.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.source, w.gallery_size, w.frames, w.started_at, w.finished_at, COUNT(st.id)
		FROM watch_sessions w
		LEFT JOIN sightings st ON st.session_id = w.id
		GROUP BY w.id
		ORDER BY w.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ses Session
		if err := rows.Scan(&ses.ID, &ses.Source, &ses.GallerySize, &ses.Frames, &ses.StartedAt, &ses.FinishedAt, &ses.Sightings); err != nil {
			return nil, err
		}
		sessions = append(sessions, ses)
	}
	return sessions, rows.Err()
}

const sightingColumns = `st.id, st.session_id, w.source, st.frame_index, st.label, st.best_label,
	st.similarity, st.threshold, st.accepted, st.low_confidence, st.box, st.descriptor, st.seen_at`

// ListSightings returns the most recent sightings, optionally restricted to
// one label, newest first. A limit of 0 or less returns every sighting.
func (s *Store) ListSightings(ctx context.Context, label string, limit int) ([]Sighting, error) {
	query := `SELECT ` + sightingColumns + `
		FROM sightings st JOIN watch_sessions w ON w.id = st.session_id
		WHERE ($1::text = '' OR st.label = $1)
		ORDER BY st.seen_at DESC, st.id DESC`
	args := []any{label}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []Sighting
	for rows.Next() {
		st, err := scanSighting(rows, nil)
		if err != nil {
			return nil, err
		}
		sightings = append(sightings, st)
	}
	return sightings, rows.Err()
}

// NearestSightings returns the sightings whose descriptors are closest to d
// by cosine distance, limited to maxDistance.
func (s *Store) NearestSightings(ctx context.Context, d descriptor.Descriptor, limit int, maxDistance float64) ([]Sighting, error) {
	if !d.Valid() {
		return nil, errors.New("query descriptor has the wrong dimension")
	}
	// <=> is the cosine distance operator in pgvector
	rows, err := s.pool.Query(ctx, `
		SELECT `+sightingColumns+`, st.descriptor <=> $1 AS distance
		FROM sightings st JOIN watch_sessions w ON w.id = st.session_id
		WHERE st.descriptor <=> $1 < $3
		ORDER BY st.descriptor <=> $1 ASC, st.id ASC
		LIMIT $2
	`, pgvector.NewVector(d), limit, maxDistance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []Sighting
	for rows.Next() {
		var distance float64
		st, err := scanSighting(rows, &distance)
		if err != nil {
			return nil, err
		}
		sightings = append(sightings, st)
	}
	return sightings, rows.Err()
}

// LabelSighting corrects the label recorded for one sighting. The sighting
// is marked accepted since a person vouched for it.
func (s *Store) LabelSighting(ctx context.Context, id int64, label string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sightings SET label = $2, accepted = TRUE, low_confidence = FALSE WHERE id = $1
	`, id, label)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sighting %d not found", id)
	}
	return nil
}

// scanSighting reads one row of sightingColumns, followed by the distance
// column when distance is not nil.
func scanSighting(rows pgx.Rows, distance *float64) (Sighting, error) {
	var (
		st  Sighting
		box []int32
		vec pgvector.Vector
	)
	dest := []any{&st.ID, &st.SessionID, &st.Source, &st.FrameIndex, &st.Label, &st.BestLabel,
		&st.Similarity, &st.Threshold, &st.Accepted, &st.LowConfidence, &box, &vec, &st.SeenAt}
	if distance != nil {
		dest = append(dest, distance)
	}
	if err := rows.Scan(dest...); err != nil {
		return Sighting{}, err
	}

	st.Box = boxFromArray(box)
	st.Descriptor = descriptor.Descriptor(vec.Slice())
	if distance != nil {
		st.Distance = *distance
	}
	return st, nil
}

func boxToArray(b types.Box) []int32 {
	return []int32{int32(b.X), int32(b.Y), int32(b.Width), int32(b.Height)}
}

func boxFromArray(a []int32) types.Box {
	if len(a) != 4 {
		return types.Box{}
	}
	return types.Box{X: int(a[0]), Y: int(a[1]), Width: int(a[2]), Height: int(a[3])}
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS sightings CASCADE;
		DROP TABLE IF EXISTS watch_sessions CASCADE;
	`)
	return err
}
