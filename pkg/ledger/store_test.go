package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLedger(t *testing.T, sink Sink) (*gorm.DB, *Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db, sink, nil)
	require.NoError(t, store.AutoMigrate())
	return db, store
}

func TestStore_AppendAndLineage(t *testing.T) {
	ctx := context.Background()
	_, store := newTestLedger(t, nil)

	require.NoError(t, store.RecordDelivery(ctx, "bot-1", "acme", "trace-1", "res-1", "refund-policy", "ver-1", "sha256:abc", "answer refund question"))
	require.NoError(t, store.RecordDenial(ctx, "bot-2", "acme", "trace-2", "res-1", "refund-policy", "agent is not approved"))
	require.NoError(t, store.RecordPromptUsage(ctx, "bot-1", "acme", "trace-1", "prompt-1", "pver-1", "sha256:def", "greeting"))

	lineage, err := store.GetLineage(ctx, 10)
	require.NoError(t, err)
	require.Len(t, lineage, 1)
	assert.Equal(t, "bot-1", lineage[0].AgentID)
	assert.Equal(t, "trace-1", lineage[0].TraceID)
	assert.Equal(t, "ver-1", lineage[0].VersionID)

	blocked, err := store.GetBlocked(ctx, 10)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "agent is not approved", blocked[0].Reason)
}

func TestStore_MonotonicIDs(t *testing.T) {
	ctx := context.Background()
	_, store := newTestLedger(t, nil)

	var last uint64
	for i := 0; i < 5; i++ {
		e := &EventRecord{ActionType: string(ActionProtocolCall), SkillName: "get_prompt"}
		require.NoError(t, store.Append(ctx, e))
		assert.Greater(t, e.ID, last)
		last = e.ID
	}
}

func TestStore_DenialReasonNeverEmpty(t *testing.T) {
	ctx := context.Background()
	_, store := newTestLedger(t, nil)

	require.NoError(t, store.RecordDenial(ctx, "bot-1", "acme", "t", "r", "n", ""))
	blocked, err := store.GetBlocked(ctx, 1)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.NotEmpty(t, blocked[0].Reason)
}

func TestStore_IntersectionLog(t *testing.T) {
	ctx := context.Background()
	_, store := newTestLedger(t, nil)

	require.NoError(t, store.RecordIntersection(ctx, "bot-1", "acme", "trace-1", "ctx-1", "cv-1", "prompt-1", "pv-1", "inference"))
	require.NoError(t, store.RecordIntersection(ctx, "bot-2", "acme", "trace-2", "ctx-1", "cv-1", "prompt-1", "pv-1", "inference"))

	all, err := store.GetIntersectionLog(ctx, IntersectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byAgent, err := store.GetIntersectionLog(ctx, IntersectionFilter{AgentID: "bot-1"})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, "trace-1", byAgent[0].TraceID)
	assert.Equal(t, "pv-1", byAgent[0].PromptVersion)
	assert.Equal(t, "cv-1", byAgent[0].VersionID)

	byTrace, err := store.GetIntersectionLog(ctx, IntersectionFilter{TraceID: "trace-2"})
	require.NoError(t, err)
	require.Len(t, byTrace, 1)

	past := time.Now().Add(-time.Hour)
	older, err := store.GetIntersectionLog(ctx, IntersectionFilter{To: &past})
	require.NoError(t, err)
	assert.Empty(t, older)
}

func TestStore_ListAllPagination(t *testing.T) {
	ctx := context.Background()
	_, store := newTestLedger(t, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &EventRecord{ActionType: string(ActionProtocolCall)}))
	}

	page, next, err := store.ListAll(ctx, "", 3, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.NotZero(t, next)

	rest, next, err := store.ListAll(ctx, "", 3, next)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Zero(t, next)
}

func TestFileSink_EmitsDenormalizedRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	_, store := newTestLedger(t, NewFileSink(path))

	require.NoError(t, store.RecordDelivery(ctx, "bot-1", "acme", "trace-1", "res-1", "refund-policy", "ver-1", "sha256:abc", "why"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var flat FlatEvent
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &flat))
	assert.Equal(t, "v1", flat.SchemaVersion)
	assert.Equal(t, "context_delivered", flat.EventType)
	assert.Equal(t, "bot-1", flat.AgentID)
	assert.Equal(t, "sha256:abc", flat.ContentHash)
	assert.False(t, scanner.Scan())
}
