package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRingWrapsNewestFirst(t *testing.T) {
	r := newAuditRing(3)
	for i := 0; i < 5; i++ {
		stage := "launch"
		if i%2 == 1 {
			stage = "identity"
		}
		r.push(&model.AuditLog{ID: fmt.Sprint(i), SessionID: "s1", Stage: stage})
	}

	got := r.find(model.AuditQuery{}.Normalize())
	require.Len(t, got, 3)
	assert.Equal(t, []string{"4", "3", "2"}, []string{got[0].ID, got[1].ID, got[2].ID})

	launches := r.find(model.AuditQuery{Stage: "launch", Limit: 10})
	require.Len(t, launches, 2)
	assert.Equal(t, "4", launches[0].ID)

	assert.Len(t, r.find(model.AuditQuery{Limit: 1}), 1)
	assert.Empty(t, r.find(model.AuditQuery{SessionID: "other", Limit: 10}))
}

func TestAuditRingBeforeWrap(t *testing.T) {
	r := newAuditRing(4)
	r.push(&model.AuditLog{ID: "a"})
	r.push(&model.AuditLog{ID: "b"})
	got := r.find(model.AuditQuery{Limit: 10})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

type failingAuditRepo struct{ inserts int }

func (f *failingAuditRepo) Insert(context.Context, *model.AuditLog) error {
	f.inserts++
	return nil
}

func (f *failingAuditRepo) List(context.Context, model.AuditQuery) ([]*model.AuditLog, error) {
	return nil, fmt.Errorf("db down")
}

func TestAuditServiceWritesDailyFileAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	repo := &failingAuditRepo{}
	svc, err := NewAuditService(dir, repo)
	require.NoError(t, err)

	svc.Record(&model.AuditLog{ID: "r1", SessionID: "s1", Stage: "launch", ErrorCode: "VERIFY_FAILED", CreatedAt: time.Now()})
	svc.Close()

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "audit-"+time.Now().UTC().Format("2006-01-02")+".jsonl", filepath.Base(files[0]))
	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"error_code":"VERIFY_FAILED"`)
	assert.Equal(t, 1, repo.inserts)

	list, err := svc.List(context.Background(), model.AuditQuery{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "launch", list[0].Stage)
}
