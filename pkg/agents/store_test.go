package agents

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func testManifest() *Manifest {
	return &Manifest{
		AgentID:           "bot-1",
		Version:           "1.0.0",
		OwnerTeam:         "acme",
		URL:               "https://bots.acme.example/bot-1",
		Name:              "Support Bot",
		ToolsUsed:         []string{"search"},
		AllowedDataScopes: []string{"support"},
	}
}

func TestStore_RegisterByManifest_Create(t *testing.T) {
	store := newTestStore(t)

	record, created, err := store.RegisterByManifest(testManifest(), "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "acme", record.OrgID) // resolved from owner_team
	assert.Equal(t, string(ApprovalPending), record.ApprovalStatus)
	assert.Equal(t, StatusActive, record.Status)
}

func TestStore_RegisterByManifest_Validation(t *testing.T) {
	store := newTestStore(t)

	m := testManifest()
	m.URL = ""
	_, _, err := store.RegisterByManifest(m, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "url", ve.Field)
}

func TestStore_RegisterByManifest_UpsertKeepsApproval(t *testing.T) {
	store := newTestStore(t)

	record, _, err := store.RegisterByManifest(testManifest(), "")
	require.NoError(t, err)

	approved, err := store.Approve(record.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, string(ApprovalApproved), approved.ApprovalStatus)

	// Re-registration with a changed manifest updates fields in place but
	// never resets the approval state.
	m := testManifest()
	m.Description = "now with longer description"
	m.ToolsUsed = []string{"search", "summarize"}
	again, created, err := store.RegisterByManifest(m, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, record.ID, again.ID)
	assert.Equal(t, "now with longer description", again.Description)
	assert.Equal(t, string(ApprovalApproved), again.ApprovalStatus)
}

func TestStore_RegisterByManifest_OrgResolution(t *testing.T) {
	store := newTestStore(t)

	// Hint wins over owner_team.
	record, _, err := store.RegisterByManifest(testManifest(), "globex")
	require.NoError(t, err)
	assert.Equal(t, "globex", record.OrgID)

	// Same agent_id in a different org is a distinct agent.
	other, created, err := store.RegisterByManifest(testManifest(), "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, record.ID, other.ID)

	// An explicit root hint pins the agent to the default scope.
	m := testManifest()
	m.AgentID = "bot-2"
	rooted, _, err := store.RegisterByManifest(m, DefaultOrg)
	require.NoError(t, err)
	assert.Equal(t, DefaultOrg, rooted.OrgID)
}

func TestStore_ApproveGuards(t *testing.T) {
	store := newTestStore(t)

	record, _, err := store.RegisterByManifest(testManifest(), "")
	require.NoError(t, err)

	_, err = store.Approve(record.ID, "operator")
	require.NoError(t, err)

	// A second approval, or a rejection after approval, is invalid.
	_, err = store.Approve(record.ID, "operator")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ApprovalApproved, te.From)

	_, err = store.Reject(record.ID, "operator")
	require.ErrorAs(t, err, &te)

	_, err = store.Approve("missing", "operator")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestStore_Lookups(t *testing.T) {
	store := newTestStore(t)

	record, _, err := store.RegisterByManifest(testManifest(), "")
	require.NoError(t, err)

	byAgentID, err := store.GetByAgentID("", "bot-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, byAgentID.ID)

	byEndpoint, err := store.GetByEndpoint("https://bots.acme.example/bot-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, byEndpoint.ID)

	_, err = store.GetByAgentID("", "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	// Ambiguity across orgs without an org qualifier is an error.
	_, _, err = store.RegisterByManifest(testManifest(), "globex")
	require.NoError(t, err)
	_, err = store.GetByAgentID("", "bot-1")
	var amb *AmbiguousIDError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, "bot-1", amb.AgentID)

	scoped, err := store.GetByAgentID("acme", "bot-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", scoped.OrgID)
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a-bot", "b-bot", "c-bot"} {
		m := testManifest()
		m.AgentID = id
		m.URL = "https://bots.acme.example/" + id
		_, _, err := store.RegisterByManifest(m, "")
		require.NoError(t, err)
	}

	page, next, err := store.List("acme", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a-bot", page[0].AgentID)
	require.NotEmpty(t, next)

	rest, next, err := store.List("acme", 2, next)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Empty(t, next)
}
