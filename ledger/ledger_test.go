package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/reaper/types"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLedger_RecordAndGet(t *testing.T) {
	l, _ := openTestLedger(t)

	rev, err := l.BeginSweep()
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	expiry := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	decision := types.Decision{
		Action:     types.ActionTerminate,
		InstanceID: "i-1",
		Reason:     types.ReasonExpired,
		DecidedAt:  time.Now(),
	}
	require.NoError(t, l.RecordDecision(rev, decision, expiry, true))

	record, ok := l.Get("i-1")
	require.True(t, ok)
	assert.Equal(t, types.ActionTerminate, record.Action)
	assert.Equal(t, types.ReasonExpired, record.Reason)
	assert.True(t, record.Expiry.Equal(expiry))
	assert.True(t, record.DryRun)
	assert.Equal(t, rev, record.SweepRev)

	_, ok = l.Get("i-unknown")
	assert.False(t, ok)
}

func TestLedger_ListOrdered(t *testing.T) {
	l, _ := openTestLedger(t)
	rev, err := l.BeginSweep()
	require.NoError(t, err)

	for _, id := range []string{"i-c", "i-a", "i-b"} {
		decision := types.Decision{Action: types.ActionNone, InstanceID: id}
		require.NoError(t, l.RecordDecision(rev, decision, time.Time{}, false))
	}

	records := l.List()
	require.Len(t, records, 3)
	assert.Equal(t, "i-a", records[0].InstanceID)
	assert.Equal(t, "i-b", records[1].InstanceID)
	assert.Equal(t, "i-c", records[2].InstanceID)
}

func TestLedger_ExpiringBefore(t *testing.T) {
	l, _ := openTestLedger(t)
	rev, err := l.BeginSweep()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	soon := types.Decision{Action: types.ActionNone, InstanceID: "i-soon"}
	later := types.Decision{Action: types.ActionNone, InstanceID: "i-later"}
	require.NoError(t, l.RecordDecision(rev, soon, now.Add(time.Hour), false))
	require.NoError(t, l.RecordDecision(rev, later, now.Add(30*24*time.Hour), false))

	expiring := l.ExpiringBefore(now.Add(24 * time.Hour))
	require.Len(t, expiring, 1)
	assert.Equal(t, "i-soon", expiring[0].InstanceID)
}

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	rev, err := l.BeginSweep()
	require.NoError(t, err)
	decision := types.Decision{Action: types.ActionTag, InstanceID: "i-1", Expiry: time.Now()}
	require.NoError(t, l.RecordDecision(rev, decision, decision.Expiry, false))
	require.NoError(t, l.RecordSweep(SweepSummary{Rev: rev, Scanned: 1, StartedAt: time.Now()}))
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, rev, reopened.CurrentRev())
	record, ok := reopened.Get("i-1")
	require.True(t, ok)
	assert.Equal(t, types.ActionTag, record.Action)

	sweeps, err := reopened.Sweeps()
	require.NoError(t, err)
	require.Len(t, sweeps, 1)
	assert.Equal(t, 1, sweeps[0].Scanned)
}
