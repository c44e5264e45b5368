package store

import (
	"context"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/matcher"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func axis(i int) descriptor.Descriptor {
	d := make(descriptor.Descriptor, descriptor.Dimension)
	d[i] = 1
	return d
}

func TestSightingsFromRecognitions(t *testing.T) {
	session := uuid.New()
	recs := []pipeline.Recognition{{
		Region:     image.Rect(4, 8, 24, 48),
		Descriptor: axis(0),
		Match:      matcher.Result{Label: "alice", BestLabel: "alice", BestSimilarity: 0.97, Threshold: 0.9, Accepted: true},
	}}

	got := SightingsFromRecognitions(session, 12, recs)

	require.Len(t, got, 1)
	assert.Equal(t, session, got[0].SessionID)
	assert.Equal(t, 12, got[0].FrameIndex)
	assert.Equal(t, "alice", got[0].Label)
	assert.Equal(t, types.Box{X: 4, Y: 8, Width: 20, Height: 40}, got[0].Box)
}

func TestBoxArray(t *testing.T) {
	b := types.Box{X: 1, Y: 2, Width: 3, Height: 4}
	assert.Equal(t, b, boxFromArray(boxToArray(b)))
	assert.Equal(t, types.Box{}, boxFromArray([]int32{1, 2}))
}

// TestStoreIntegration runs against a real Postgres container with pgvector.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers panics when the docker socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("facewatch_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	require.NoError(t, err, "Failed to start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, connStr)
	require.NoError(t, err)
	defer s.Close()

	sessionID, err := s.StartSession(ctx, "/videos/lobby.mp4", 2)
	require.NoError(t, err)

	err = s.InsertSightings(ctx, []Sighting{
		{SessionID: sessionID, FrameIndex: 10, Label: "alice", BestLabel: "alice", Similarity: 0.96, Threshold: 0.9,
			Accepted: true, Box: types.Box{X: 1, Y: 2, Width: 30, Height: 40}, Descriptor: axis(0)},
		{SessionID: sessionID, FrameIndex: 20, Label: "Unknown", BestLabel: "bob", Similarity: 0.4, Threshold: 0.6,
			Box: types.Box{X: 5, Y: 5, Width: 20, Height: 20}, Descriptor: axis(1)},
	})
	require.NoError(t, err)

	err = s.InsertSightings(ctx, []Sighting{{SessionID: sessionID, Label: "short", Descriptor: descriptor.Descriptor{1}}})
	assert.Error(t, err, "descriptors of the wrong dimension must be rejected")

	require.NoError(t, s.FinishSession(ctx, sessionID, 25))
	assert.Error(t, s.FinishSession(ctx, uuid.New(), 1))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
	assert.Equal(t, 25, sessions[0].Frames)
	assert.Equal(t, 2, sessions[0].Sightings)
	assert.NotNil(t, sessions[0].FinishedAt)

	all, err := s.ListSightings(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	alice, err := s.ListSightings(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, types.Box{X: 1, Y: 2, Width: 30, Height: 40}, alice[0].Box)
	assert.Equal(t, "/videos/lobby.mp4", alice[0].Source)
	assert.Equal(t, axis(0), alice[0].Descriptor)

	near, err := s.NearestSightings(ctx, axis(0), 5, 0.1)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "alice", near[0].Label)
	assert.InDelta(t, 0, near[0].Distance, 1e-6)

	_, err = s.NearestSightings(ctx, descriptor.Descriptor{1}, 5, 0.1)
	assert.Error(t, err)

	unknown, err := s.ListSightings(ctx, "Unknown", 0)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	require.NoError(t, s.LabelSighting(ctx, unknown[0].ID, "bob"))
	bob, err := s.ListSightings(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.True(t, bob[0].Accepted)
	assert.Equal(t, 20, bob[0].FrameIndex)
	assert.Error(t, s.LabelSighting(ctx, -1, "nobody"))

	require.NoError(t, s.Reset(ctx))
	_, err = s.ListSessions(ctx)
	assert.Error(t, err, "tables are dropped by Reset")
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
