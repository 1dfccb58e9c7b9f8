package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/igorgomez/medidascorporais/internal/cache"
	"github.com/igorgomez/medidascorporais/internal/observability"
)

var day = time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)

func TestCreateRejectsEmptyBeforeStore(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)

	_, _, err := svc.Create(context.Background(), "u1", CreateInput{Date: day, Values: Values{Weight: "  "}})
	require.ErrorIs(t, err, ErrEmptyMeasurement)
	require.Zero(t, store.createCalls)
}

func TestCreateRejectsInvalidValues(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)

	for _, v := range []Values{{Weight: "abc"}, {Arm: "-3"}, {Thigh: "NaN"}} {
		_, _, err := svc.Create(context.Background(), "u1", CreateInput{Date: day, Values: v})
		require.ErrorIs(t, err, ErrInvalidValue)
	}
	_, _, err := svc.Create(context.Background(), "u1", CreateInput{Values: Values{Weight: "70"}})
	require.ErrorIs(t, err, ErrInvalidValue, "zero date")
	require.Zero(t, store.createCalls)
}

func TestCreateAttachesOwnerAndAssignedFields(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)

	m, replay, err := svc.Create(context.Background(), "u1", CreateInput{Date: day, Values: Values{Weight: " 70.2 "}})
	require.NoError(t, err)
	require.False(t, replay)
	require.Equal(t, "u1", m.UserID)
	require.NotEmpty(t, m.ID)
	require.False(t, m.CreatedAt.IsZero())
	require.Equal(t, "70.2", m.Weight)
}

func TestCreateWrapsStoreFault(t *testing.T) {
	store := newStubStore()
	store.failCreateAt = 1
	svc := NewService(store, WithLogger(zaptest.NewLogger(t)))

	before := testutil.ToFloat64(observability.FailureCounter("create"))
	_, _, err := svc.Create(context.Background(), "u1", CreateInput{Date: day, Values: Values{Hips: "90"}})
	require.ErrorIs(t, err, ErrCreateFailed)
	require.Equal(t, before+1, testutil.ToFloat64(observability.FailureCounter("create")))
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	store := newStubStore()
	svc := NewService(store)
	ctx := context.Background()

	for i, offset := range []int{2, 0, 5, 1} {
		_, _, err := svc.Create(ctx, "u1", CreateInput{Date: day.AddDate(0, 0, offset), Values: Values{Weight: strconv.Itoa(70 + i)}})
		require.NoError(t, err)
	}

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i := 1; i < len(items); i++ {
		require.False(t, items[i].Date.After(items[i-1].Date))
	}
	require.Equal(t, "72", items[0].Weight)
}

func TestListFailureIsFetchFailed(t *testing.T) {
	store := newStubStore()
	store.listErr = errors.New("connection reset")
	svc := NewService(store)

	_, err := svc.List(context.Background(), "u1")
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Equal(t, "Could not load your measurements.", Message(err))
}

func TestListRequiresUser(t *testing.T) {
	_, err := NewService(newStubStore()).List(context.Background(), " ")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDeleteThenListExcludesRecord(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, WithListCache(cache.NewListCache[[]Measurement](time.Minute)))
	ctx := context.Background()

	a, _, err := svc.Create(ctx, "u1", CreateInput{Date: day, Values: Values{Chest: "100"}})
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, "u1", CreateInput{Date: day.Add(time.Hour), Values: Values{Chest: "101"}})
	require.NoError(t, err)

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NoError(t, svc.Delete(ctx, "u1", a.ID))
	items, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotEqual(t, a.ID, items[0].ID)

	require.NoError(t, svc.Delete(ctx, "u1", "does-not-exist"))
}

func TestDeleteWrapsStoreFault(t *testing.T) {
	store := newStubStore()
	store.deleteErr = errors.New("timeout")
	err := NewService(store).Delete(context.Background(), "u1", "x")
	require.ErrorIs(t, err, ErrDeleteFailed)
}

func TestListCacheServesUntilMutation(t *testing.T) {
	store := newStubStore()
	inv := &countingInvalidator{}
	svc := NewService(store, WithListCache(cache.NewListCache[[]Measurement](time.Minute)), WithInvalidator(inv))
	ctx := context.Background()

	_, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	_, _, err = svc.Create(ctx, "u1", CreateInput{Date: day, Values: Values{Arm: "30"}})
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, store.listCalls)
}

func TestListRacingDeleteDoesNotRefillCacheWithStaleRows(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, WithListCache(cache.NewListCache[[]Measurement](time.Minute)))
	ctx := context.Background()

	m, _, err := svc.Create(ctx, "u1", CreateInput{Date: day, Values: Values{Weight: "70"}})
	require.NoError(t, err)

	entered, release := make(chan struct{}), make(chan struct{})
	store.mu.Lock()
	store.listEntered, store.listRelease = entered, release
	store.mu.Unlock()

	type result struct {
		items []Measurement
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := svc.List(ctx, "u1")
		done <- result{items, err}
	}()

	<-entered
	require.NoError(t, svc.Delete(ctx, "u1", m.ID))
	close(release)
	stale := <-done
	require.NoError(t, stale.err)
	require.Len(t, stale.items, 1, "the in-flight read saw the row")

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, 2, store.listCalls, "the stale read was not cached")
}

func TestInvalidationFailureDoesNotFailMutation(t *testing.T) {
	svc := NewService(newStubStore(), WithInvalidator(&countingInvalidator{err: errors.New("edge down")}), WithLogger(zaptest.NewLogger(t)))
	_, _, err := svc.Create(context.Background(), "u1", CreateInput{Date: day, Values: Values{Arm: "30"}})
	require.NoError(t, err)
}

func TestMigrateMovesEveryLegacyRecord(t *testing.T) {
	store := newStubStore()
	legacy := &stubLegacy{records: legacyRecords(6)}
	svc := NewService(store, WithLegacyStore(legacy))
	ctx := context.Background()

	report, err := svc.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 6, report.Migrated)
	require.Empty(t, report.Skipped)
	require.Nil(t, legacy.records)

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 6)
	for _, m := range items {
		require.NotContains(t, m.ID, "legacy", "local ids are not reused")
	}

	report, err = svc.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, report.Migrated)
}

func TestMigrateWithoutLegacyData(t *testing.T) {
	report, err := NewService(newStubStore(), WithLegacyStore(&stubLegacy{})).Migrate(context.Background(), "u1")
	require.NoError(t, err)
	require.Zero(t, report.Migrated)

	report, err = NewService(newStubStore()).Migrate(context.Background(), "u1")
	require.NoError(t, err)
	require.Zero(t, report.Migrated)
}

func TestMigrateFailureKeepsLocalDataAndRetryDoesNotDuplicate(t *testing.T) {
	const total = 6
	store := newStubStore()
	store.failCreateAt = total/2 + 1
	legacy := &stubLegacy{records: legacyRecords(total)}
	svc := NewService(store, WithLegacyStore(legacy))
	ctx := context.Background()

	report, err := svc.Migrate(ctx, "u1")
	require.ErrorIs(t, err, ErrMigrateFailed)
	require.Equal(t, total/2, report.Migrated)
	require.Len(t, legacy.records, total, "local data untouched")

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, total/2, "no rollback")

	store.failCreateAt = 0
	report, err = svc.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, total, report.Migrated)
	require.Nil(t, legacy.records)

	items, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, total)
}

func TestMigrateSkipsEntriesThatCanNeverBeStored(t *testing.T) {
	records := legacyRecords(3)
	records[1].Values = Values{}
	records = append(records,
		LegacyRecord{ID: "bad-number", Date: "2025-01-01T08:00", Values: Values{Weight: "seventy"}},
		LegacyRecord{ID: "bad-date", Date: "yesterday", Values: Values{Weight: "70"}},
	)
	store := newStubStore()
	legacy := &stubLegacy{records: records}
	svc := NewService(store, WithLegacyStore(legacy), WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	report, err := svc.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, report.Migrated)
	require.Nil(t, legacy.records, "the pass completes and clears local data")

	require.Len(t, report.Skipped, 3)
	require.Equal(t, 1, report.Skipped[0].Index)
	require.Equal(t, records[1].ID, report.Skipped[0].Record.ID)
	require.Equal(t, "bad-number", report.Skipped[1].Record.ID)
	require.Equal(t, "bad-date", report.Skipped[2].Record.ID)
	require.Equal(t, "yesterday", report.Skipped[2].Record.Date)
	for _, skipped := range report.Skipped {
		require.NotEmpty(t, skipped.Reason)
	}

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func legacyRecords(n int) []LegacyRecord {
	out := make([]LegacyRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, LegacyRecord{
			ID:     fmt.Sprintf("170000000000%d", i),
			Date:   day.AddDate(0, 0, -i).Format("2006-01-02T15:04"),
			Values: Values{Weight: strconv.Itoa(80 - i)},
		})
	}
	return out
}

type stubStore struct {
	mu           sync.Mutex
	items        map[string][]Measurement
	keys         map[string]Measurement
	seq          int
	createCalls  int
	listCalls    int
	failCreateAt int
	listErr      error
	deleteErr    error

	// When set, the next List signals listEntered after reading and waits
	// for listRelease before returning.
	listEntered chan struct{}
	listRelease chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{items: map[string][]Measurement{}, keys: map[string]Measurement{}}
}

func (s *stubStore) List(_ context.Context, userID string) ([]Measurement, error) {
	s.mu.Lock()
	s.listCalls++
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	items := append([]Measurement(nil), s.items[userID]...)
	entered, release := s.listEntered, s.listRelease
	s.listEntered, s.listRelease = nil, nil
	s.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}
	return items, nil
}

func (s *stubStore) Create(_ context.Context, userID string, input NewMeasurement, key string) (Measurement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if key != "" {
		if m, ok := s.keys[userID+"/"+key]; ok {
			return m, true, nil
		}
	}
	if s.failCreateAt > 0 && s.createCalls == s.failCreateAt {
		return Measurement{}, false, errors.New("store unavailable")
	}
	s.seq++
	m := Measurement{ID: fmt.Sprintf("m-%03d", s.seq), Date: input.Date, CreatedAt: time.Now().UTC(), Values: input.Values}
	s.items[userID] = append(s.items[userID], m)
	if key != "" {
		s.keys[userID+"/"+key] = m
	}
	return m, false, nil
}

func (s *stubStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	kept := s.items[userID][:0]
	for _, m := range s.items[userID] {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.items[userID] = kept
	return nil
}

type stubLegacy struct {
	records []LegacyRecord
}

func (l *stubLegacy) LoadLegacy(context.Context) ([]LegacyRecord, error) {
	return append([]LegacyRecord(nil), l.records...), nil
}

func (l *stubLegacy) ClearLegacy(context.Context) error {
	l.records = nil
	return nil
}

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context, string) error {
	c.calls++
	return c.err
}
