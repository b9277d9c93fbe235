package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/codec"
	"github.com/vietddude/hotstore/internal/hot/hottest"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

type fixture struct {
	counter *hottest.Counter
	store   *sqlstore.EntityStore
	reg     *schema.Registry
	tracker *Tracker
}

func newFixture(t *testing.T, height int64) *fixture {
	t.Helper()
	db := hottest.Open(t)
	tx := hottest.Begin(t, db)
	reg := hottest.Registry()

	counter := hottest.Count(tx)
	store := sqlstore.NewEntityStore(counter, db.Dialect, reg)
	return &fixture{
		counter: counter,
		store:   store,
		reg:     reg,
		tracker: New(counter, db.Tables, reg, store, height),
	}
}

func (f *fixture) seed(t *testing.T, rows ...schema.Row) {
	t.Helper()
	if err := f.store.Insert(context.Background(), "Account", rows); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	f.counter.Reset()
}

func (f *fixture) changes(t *testing.T, height int64) []domain.ChangeRecord {
	t.Helper()
	texts := hottest.ChangeLog(t, f.counter, height)
	out := make([]domain.ChangeRecord, len(texts))
	for i, text := range texts {
		c, err := codec.UnmarshalChange([]byte(text), f.reg)
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		out[i] = c
	}
	return out
}

func TestTrackInsert_NoPreImageFetch(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	rows := []schema.Row{
		hottest.Row("a", 1, "alice", nil, ""),
		hottest.Row("b", 2, "bob", nil, ""),
	}
	if err := f.tracker.TrackInsert(ctx, "Account", rows); err != nil {
		t.Fatalf("TrackInsert failed: %v", err)
	}

	if q := f.counter.Queries(); q != 0 {
		t.Errorf("expected no reads for inserts, got %d", q)
	}
	if e := f.counter.Execs(); e != 1 {
		t.Errorf("expected one change-log write, got %d", e)
	}
	if f.tracker.Sequence() != 2 {
		t.Errorf("expected next index 2, got %d", f.tracker.Sequence())
	}

	got := f.changes(t, 100)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	for i, id := range []string{"a", "b"} {
		c, ok := got[i].(domain.InsertChange)
		if !ok {
			t.Fatalf("entry %d: expected insert, got %T", i, got[i])
		}
		if c.Table != "account" || c.ID != id {
			t.Errorf("entry %d: unexpected ref %+v", i, c.RowRef)
		}
	}
}

func TestTrackUpsert_ClassifiesByExistence(t *testing.T) {
	f := newFixture(t, 101)
	ctx := context.Background()
	f.seed(t, hottest.Row("old", 10, "carol", []byte{0xde, 0xad}, `{"tier":1}`))

	rows := []schema.Row{
		hottest.Row("old", 11, "carol", nil, ""),
		hottest.Row("new", 1, "dave", nil, ""),
	}
	if err := f.tracker.TrackUpsert(ctx, "Account", rows); err != nil {
		t.Fatalf("TrackUpsert failed: %v", err)
	}

	got := f.changes(t, 101)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}

	upd, ok := got[0].(domain.UpdateChange)
	if !ok {
		t.Fatalf("expected update for existing row, got %T", got[0])
	}
	want := domain.Fields{
		{Column: "balance", Value: domain.Int(10)},
		{Column: "owner", Value: domain.Text("carol")},
		{Column: "code", Value: domain.Binary([]byte{0xde, 0xad})},
		{Column: "meta", Value: domain.JSON(`{"tier":1}`)},
	}
	if len(upd.Fields) != len(want) {
		t.Fatalf("expected %d captured fields, got %d", len(want), len(upd.Fields))
	}
	for i := range want {
		if upd.Fields[i].Column != want[i].Column || !upd.Fields[i].Value.Equal(want[i].Value) {
			t.Errorf("field %d: expected %s=%s, got %s=%s",
				i, want[i].Column, want[i].Value, upd.Fields[i].Column, upd.Fields[i].Value)
		}
	}

	if _, ok := got[1].(domain.InsertChange); !ok {
		t.Errorf("expected insert for new row, got %T", got[1])
	}
}

func TestTrack_BulkFetchBound(t *testing.T) {
	tcs := []struct {
		op      string
		fetches int64
		track   func(ctx context.Context, tr *Tracker, rows []schema.Row) error
		// tracked returns the entries expected when half the rows (plus one) exist
		tracked func(n int) int
	}{
		{
			op:      "insert",
			fetches: 0,
			track: func(ctx context.Context, tr *Tracker, rows []schema.Row) error {
				return tr.TrackInsert(ctx, "Account", rows)
			},
			tracked: func(n int) int { return n },
		},
		{
			op:      "upsert",
			fetches: 1,
			track: func(ctx context.Context, tr *Tracker, rows []schema.Row) error {
				return tr.TrackUpsert(ctx, "Account", rows)
			},
			tracked: func(n int) int { return n },
		},
		{
			op:      "delete",
			fetches: 1,
			track: func(ctx context.Context, tr *Tracker, rows []schema.Row) error {
				return tr.TrackDelete(ctx, "Account", schema.IDs(rows))
			},
			tracked: func(n int) int {
				if n == 0 {
					return 0
				}
				return n/2 + 1
			},
		},
	}

	for _, tc := range tcs {
		for _, n := range []int{0, 1, 1000} {
			t.Run(fmt.Sprintf("%s/n=%d", tc.op, n), func(t *testing.T) {
				f := newFixture(t, 102)
				ctx := context.Background()

				rows := make([]schema.Row, n)
				for i := range rows {
					rows[i] = hottest.Row(fmt.Sprintf("acc-%04d", i), int64(i), "x", nil, "")
				}
				if n > 0 && tc.op != "insert" {
					f.seed(t, rows[:n/2+1]...)
				}

				if err := tc.track(ctx, f.tracker, rows); err != nil {
					t.Fatalf("track %s failed: %v", tc.op, err)
				}
				if q := f.counter.Queries(); q != tc.fetches {
					t.Errorf("expected %d pre-image fetches, got %d", tc.fetches, q)
				}
				if e := f.counter.Execs(); e != 1 {
					t.Errorf("expected exactly one change-log write, got %d", e)
				}
				if want := int64(tc.tracked(n)); f.tracker.Sequence() != want {
					t.Errorf("expected next index %d, got %d", want, f.tracker.Sequence())
				}
			})
		}
	}
}

func TestTrackDelete_CapturesFullRow(t *testing.T) {
	f := newFixture(t, 102)
	ctx := context.Background()
	f.seed(t, hottest.Row("gone", 7, "erin", []byte{0x00, 0x01}, `[1,2]`))

	if err := f.tracker.TrackDelete(ctx, "Account", []string{"gone", "never-existed"}); err != nil {
		t.Fatalf("TrackDelete failed: %v", err)
	}
	if q := f.counter.Queries(); q != 1 {
		t.Errorf("expected one pre-image fetch, got %d", q)
	}

	got := f.changes(t, 102)
	if len(got) != 1 {
		t.Fatalf("expected only the existing row to be tracked, got %d entries", len(got))
	}
	del, ok := got[0].(domain.DeleteChange)
	if !ok {
		t.Fatalf("expected delete, got %T", got[0])
	}
	if del.ID != "gone" || len(del.Fields) != 4 {
		t.Fatalf("unexpected delete record %+v", del)
	}
	code, _ := del.Fields.Get("code")
	if code.Kind() != domain.ValueBinary || string(code.AsBytes()) != "\x00\x01" {
		t.Errorf("expected binary pre-image, got %s", code)
	}
}

func TestTrack_StoredBinaryUsesHexMarker(t *testing.T) {
	f := newFixture(t, 104)
	ctx := context.Background()
	f.seed(t, hottest.Row("bin", 1, "frank", []byte{0xca, 0xfe}, ""))

	if err := f.tracker.TrackDelete(ctx, "Account", []string{"bin"}); err != nil {
		t.Fatalf("TrackDelete failed: %v", err)
	}
	texts := hottest.ChangeLog(t, f.counter, 104)
	if len(texts) != 1 || !strings.Contains(texts[0], `"code":"\\xCAFE"`) {
		t.Errorf("expected hex-marked binary in %v", texts)
	}
}

func TestTrack_SequenceContinuesAcrossCalls(t *testing.T) {
	f := newFixture(t, 103)
	ctx := context.Background()

	if err := f.tracker.TrackInsert(ctx, "Account", []schema.Row{hottest.Row("a", 1, "", nil, "")}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Insert(ctx, "Account", []schema.Row{hottest.Row("a", 1, "", nil, "")}); err != nil {
		t.Fatal(err)
	}
	if err := f.tracker.TrackUpsert(ctx, "Account", []schema.Row{hottest.Row("a", 2, "", nil, "")}); err != nil {
		t.Fatal(err)
	}
	if err := f.tracker.TrackDelete(ctx, "Account", []string{"a"}); err != nil {
		t.Fatal(err)
	}

	got := f.changes(t, 103)
	kinds := make([]domain.ChangeKind, len(got))
	for i, c := range got {
		kinds[i] = c.Kind()
	}
	want := []domain.ChangeKind{domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, kinds)
	}
	if f.tracker.Sequence() != 3 {
		t.Errorf("expected next index 3, got %d", f.tracker.Sequence())
	}
}

func TestTrack_UnknownEntity(t *testing.T) {
	f := newFixture(t, 100)
	err := f.tracker.TrackInsert(context.Background(), "Missing", []schema.Row{{ID: "x"}})
	if !errors.Is(err, schema.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if f.counter.Execs() != 0 {
		t.Error("nothing should be written for an unknown entity")
	}
}

type failingFetcher struct{}

func (failingFetcher) Find(context.Context, *schema.Entity, []string) ([]schema.Row, error) {
	return nil, errors.New("connection reset")
}

func TestTrackUpsert_FetchErrorKeepsSequence(t *testing.T) {
	f := newFixture(t, 100)
	f.tracker.fetcher = failingFetcher{}

	err := f.tracker.TrackUpsert(context.Background(), "Account", []schema.Row{hottest.Row("a", 1, "", nil, "")})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if f.tracker.Sequence() != 0 {
		t.Errorf("sequence must not advance on failure, got %d", f.tracker.Sequence())
	}
	if f.counter.Execs() != 0 {
		t.Error("no change-log row should be written after a failed fetch")
	}
}

func TestTrackUpsert_InvalidUTF8PreImageFails(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	if _, err := f.counter.ExecContext(ctx,
		`INSERT INTO account (id, balance, owner) VALUES ('a', 1, CAST(x'FFFE41' AS TEXT))`); err != nil {
		t.Fatal(err)
	}
	f.counter.Reset()

	err := f.tracker.TrackUpsert(ctx, "Account", []schema.Row{hottest.Row("a", 2, "ok", nil, "")})
	if !errors.Is(err, codec.ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}
	if f.counter.Execs() != 0 {
		t.Error("no change-log row should be written for an uncapturable pre-image")
	}
	if f.tracker.Sequence() != 0 {
		t.Errorf("sequence must not advance on failure, got %d", f.tracker.Sequence())
	}
}
