package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fourkites/rca-engine/pkg/stream"
)

// newTestStore spins up a disposable Postgres container (or reuses
// CI_DATABASE_URL, mirroring the teacher's test/database.NewTestClient)
// and returns a Store with migrations already applied.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("eventlog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	store, err := Open(ctx, Config{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		Database: "eventlog_test",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndReplayReconstructsStreamInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started, err := stream.NewEvent(stream.KindStarted, stream.StartedPayload{InvestigationID: "inv-1", Mode: "ocean"})
	require.NoError(t, err)
	evidence, err := stream.NewEvent(stream.KindEvidenceAdded, stream.EvidenceAddedPayload{InvestigationID: "inv-1", EvidenceID: "e1", Source: "tracking-api"})
	require.NoError(t, err)
	complete, err := stream.NewEvent(stream.KindComplete, stream.CompletePayload{InvestigationID: "inv-1", Status: "complete"})
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "inv-1", 1, started))
	require.NoError(t, store.Append(ctx, "inv-1", 2, evidence))
	require.NoError(t, store.Append(ctx, "inv-1", 3, complete))

	got, err := store.Replay(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, stream.KindStarted, got[0].Kind)
	require.Equal(t, stream.KindEvidenceAdded, got[1].Kind)
	require.Equal(t, stream.KindComplete, got[2].Kind)

	lastSeq, err := store.LastSeq(ctx, "inv-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, lastSeq)
}

func TestAppendIsIdempotentOnDuplicateSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := stream.NewEvent(stream.KindHeartbeat, stream.HeartbeatPayload{InvestigationID: "inv-2", Progress: 0.5})
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "inv-2", 1, e))
	require.NoError(t, store.Append(ctx, "inv-2", 1, e)) // duplicate delivery, same seq

	got, err := store.Replay(ctx, "inv-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReplayOfUnknownInvestigationIsEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Replay(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, got)
}
