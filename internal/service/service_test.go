package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
	contentmem "github.com/citepipe/citepipe/internal/contentstore/memory"
	idgen "github.com/citepipe/citepipe/internal/id/uuid"
	"github.com/citepipe/citepipe/internal/integrity"
	"github.com/citepipe/citepipe/internal/orchestrator"
	storemem "github.com/citepipe/citepipe/internal/store/memory"
)

type stubClock struct{ t time.Time }

func (c *stubClock) Now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type stubRefManager struct {
	missingItems map[string]bool
}

func (s *stubRefManager) TranslateIdentifier(context.Context, string) (citation.Item, error) {
	return citation.Item{}, citation.ErrItemNotFound
}

func (s *stubRefManager) TranslateURL(context.Context, string) (citation.Item, error) {
	return citation.Item{}, citation.ErrItemNotFound
}

func (s *stubRefManager) GetItem(_ context.Context, key string) (citation.Item, error) {
	if s.missingItems[key] {
		return citation.Item{}, citation.ErrItemNotFound
	}
	return citation.Item{Key: key, ItemType: "webpage"}, nil
}

func (s *stubRefManager) CreateItem(context.Context, citation.ExtractedMetadata, string) (string, error) {
	return "CREATED1", nil
}

func (s *stubRefManager) UpdateItem(context.Context, string, citation.ExtractedMetadata) error {
	return nil
}

func (s *stubRefManager) DeleteItem(context.Context, string) error { return nil }

func (s *stubRefManager) FindItemByURL(context.Context, string) (string, bool, error) {
	return "", false, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return nil, "", errors.New("fetch not expected in this test")
}

func newTestService(t *testing.T) (*Service, *storemem.Store) {
	t.Helper()
	store := storemem.NewStore()
	refs := &stubRefManager{missingItems: map[string]bool{"MISSING1": true}}
	clock := &stubClock{t: time.Unix(1700000000, 0).UTC()}

	orch, err := orchestrator.New(orchestrator.Config{}, orchestrator.Deps{
		Store:        store,
		ContentStore: contentmem.New(),
		RefManager:   refs,
		Fetcher:      stubFetcher{},
		Clock:        clock,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	svc, err := New(Deps{
		Store:        store,
		Orchestrator: orch,
		Checker:      integrity.NewChecker(store, zap.NewNop()),
		RefManager:   refs,
		Clock:        clock,
		IDGenerator:  idgen.New(),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return svc, store
}

func mustCreate(t *testing.T, svc *Service) citation.URLEntity {
	t.Helper()
	entity, err := svc.CreateURL(context.Background(), "sec-1", "https://example.com/"+uuid.NewString())
	require.NoError(t, err)
	return entity
}

func TestLinkToExistingItem(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	result, err := svc.LinkToExistingItem(ctx, entity.ID, "KEY00001")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, citation.StatusStoredCustom, result.NewState)

	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, got.Linked())
	require.Equal(t, "manual", got.LastProcessingMethod)

	attempts, err := store.ListAttempts(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "manual_link", attempts[0].Stage)
}

func TestLinkGuardCompleteness(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	assertRefused := func(t *testing.T, id uuid.UUID) {
		t.Helper()
		result, err := svc.LinkToExistingItem(ctx, id, "KEY00001")
		require.NoError(t, err)
		require.False(t, result.Success)
		require.Equal(t, citation.CategoryValidation, result.Category)

		attempts, err := store.ListAttempts(ctx, id)
		require.NoError(t, err)
		require.Empty(t, attempts, "refused operations append no history")
	}

	t.Run("AlreadyLinked", func(t *testing.T) {
		entity := mustCreate(t, svc)
		_, err := svc.LinkToExistingItem(ctx, entity.ID, "KEY00001")
		require.NoError(t, err)
		result, err := svc.LinkToExistingItem(ctx, entity.ID, "KEY00002")
		require.NoError(t, err)
		require.False(t, result.Success)
		require.Equal(t, citation.CategoryValidation, result.Category)

		attempts, err := store.ListAttempts(ctx, entity.ID)
		require.NoError(t, err)
		require.Len(t, attempts, 1, "only the successful link is recorded")
	})

	t.Run("IntentIgnore", func(t *testing.T) {
		entity := mustCreate(t, svc)
		got, err := store.GetURL(ctx, entity.ID)
		require.NoError(t, err)
		got.UserIntent = citation.IntentIgnore
		require.NoError(t, store.UpdateURL(ctx, got))
		assertRefused(t, entity.ID)
	})

	t.Run("ProcessingInFlight", func(t *testing.T) {
		entity := mustCreate(t, svc)
		got, err := store.GetURL(ctx, entity.ID)
		require.NoError(t, err)
		got.ProcessingStatus = citation.StatusProcessingContent
		require.NoError(t, store.UpdateURL(ctx, got))
		assertRefused(t, entity.ID)
	})
}

func TestLinkMissingItemIsRefused(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	result, err := svc.LinkToExistingItem(ctx, entity.ID, "MISSING1")
	require.NoError(t, err)
	require.False(t, result.Success)

	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.False(t, got.Linked())
}

func TestConcurrentLinksSerializePerURL(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	const callers = 8
	var (
		wg      sync.WaitGroup
		results = make([]citation.ProcessingResult, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.LinkToExistingItem(ctx, entity.ID, "KEY00001")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if results[i].Success {
			succeeded++
		} else {
			require.Equal(t, citation.CategoryValidation, results[i].Category)
		}
	}
	require.Equal(t, 1, succeeded, "exactly one concurrent link may pass the guard")

	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, citation.StatusStoredCustom, got.ProcessingStatus)

	attempts, err := store.ListAttempts(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1, "refused calls append no history")
}

func TestUnlinkRestoresInvariant(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	_, err := svc.LinkToExistingItem(ctx, entity.ID, "KEY00001")
	require.NoError(t, err)

	result, err := svc.Unlink(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, citation.StatusNotStarted, result.NewState)

	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.False(t, got.Linked())
	require.Equal(t, citation.StatusNotStarted, got.ProcessingStatus)

	_, err = store.GetLink(ctx, entity.ID)
	require.ErrorIs(t, err, citation.ErrNotFound)

	result, err = svc.Unlink(ctx, entity.ID)
	require.NoError(t, err)
	require.False(t, result.Success, "double unlink is refused")
}

func TestSetIntentIgnoreMovesStatus(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	result, err := svc.SetIntent(ctx, entity.ID, citation.IntentIgnore)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, citation.StatusIgnored, result.NewState)

	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, citation.IntentIgnore, got.UserIntent)
	require.Equal(t, citation.StatusIgnored, got.ProcessingStatus)

	result, err = svc.SetIntent(ctx, entity.ID, "nonsense")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, citation.CategoryValidation, result.Category)
}

func TestResetClearsRetryBudgetButKeepsHistory(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	got.ProcessingStatus = citation.StatusExhausted
	got.ProcessingAttempts = 3
	require.NoError(t, store.UpdateURL(ctx, got))
	require.NoError(t, store.AppendAttempt(ctx, citation.ProcessingAttempt{
		URLID: entity.ID, Stage: "content_extraction", Timestamp: time.Now().UTC(),
	}))

	result, err := svc.ResetProcessing(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, result.Success)

	got, err = store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, citation.StatusNotStarted, got.ProcessingStatus)
	require.Zero(t, got.ProcessingAttempts)

	attempts, err := store.ListAttempts(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2, "reset appends an audit entry and deletes nothing")
}

func TestRepairArchivedWithItem(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	key := "KEY00001"
	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	got.ProcessingStatus = citation.StatusArchived
	got.ExternalItemKey = &key
	require.NoError(t, store.UpdateURL(ctx, got))
	require.NoError(t, store.CreateLink(ctx, citation.ExternalItemLink{
		ItemKey: key, URLID: entity.ID, LinkedAt: time.Now().UTC(),
	}))

	issues, err := svc.ScanIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, integrity.ArchivedWithItem, issues[0].Type)

	result, err := svc.Repair(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, citation.StatusArchived, result.NewState, "repair keeps the status")

	got, err = store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.False(t, got.Linked())
	require.Equal(t, citation.StatusArchived, got.ProcessingStatus)

	_, err = store.GetLink(ctx, entity.ID)
	require.ErrorIs(t, err, citation.ErrNotFound)

	attempts, err := store.ListAttempts(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "integrity_repair", attempts[0].Stage)
}

func TestRepairRefusesCriticalIssue(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	entity := mustCreate(t, svc)

	key := "KEY00001"
	got, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	got.ProcessingStatus = citation.StatusProcessingContent
	got.ExternalItemKey = &key
	require.NoError(t, store.UpdateURL(ctx, got))

	result, err := svc.Repair(ctx, entity.ID)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, citation.CategoryIntegrity, result.Category)

	unchanged, err := store.GetURL(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, unchanged.Linked(), "critical issues are reported, never auto-corrected")
}
