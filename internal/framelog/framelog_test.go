package framelog

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webtex/bridge"
	"github.com/hazyhaar/webtex/dbopen"
	"github.com/hazyhaar/webtex/idgen"
)

func newLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	opts = append([]Option{WithIDGenerator(idgen.Sequence("cev_"))}, opts...)
	return New(db, opts...)
}

func TestRecordAndRecent(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()
	base := time.Now()

	events := []bridge.Event{
		{Kind: bridge.EventLoad, Cycle: 1, URL: "https://a.test/", At: base},
		{Kind: bridge.EventSuppressed, Cycle: 1, URL: "https://a.test/", At: base.Add(time.Millisecond)},
		{Kind: bridge.EventFrame, Cycle: 1, URL: "https://b.test/", FrameID: "frm_1", Bytes: 1234, At: base.Add(2 * time.Millisecond)},
	}
	for _, ev := range events {
		if err := l.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Kind != bridge.EventFrame || got[0].FrameID != "frm_1" || got[0].Bytes != 1234 || got[0].Cycle != 1 {
		t.Fatalf("newest = %+v", got[0])
	}
	if got[2].Kind != bridge.EventLoad || got[2].ID != "cev_1" {
		t.Fatalf("oldest = %+v", got[2])
	}
	if got[0].At.UnixMilli() != events[2].At.UnixMilli() {
		t.Errorf("At = %v, want %v", got[0].At, events[2].At)
	}
}

func TestRecent_Limit(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()
	for i := range 5 {
		l.Record(ctx, bridge.Event{Kind: bridge.EventLoad, Cycle: uint64(i + 1)})
	}
	l.Close()

	got, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestCounts(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()
	for _, k := range []string{bridge.EventLoad, bridge.EventLoad, bridge.EventFailed, bridge.EventStale} {
		l.Record(ctx, bridge.Event{Kind: k, Cycle: 1})
	}
	l.Close()

	counts, err := l.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[bridge.EventLoad] != 2 || counts[bridge.EventFailed] != 1 || counts[bridge.EventStale] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestPrune(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()
	l.Record(ctx, bridge.Event{Kind: bridge.EventLoad, Cycle: 1, At: time.Now().Add(-48 * time.Hour)})
	l.Record(ctx, bridge.Event{Kind: bridge.EventLoad, Cycle: 2})
	l.Close()

	n, err := l.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}
	if n, _ := l.Prune(ctx, 0); n != 0 {
		t.Fatalf("zero retention pruned %d rows", n)
	}
	got, _ := l.Recent(ctx, 10)
	if len(got) != 1 || got[0].Cycle != 2 {
		t.Fatalf("remaining = %+v", got)
	}
}

func TestRecord_AfterClose(t *testing.T) {
	l := newLog(t)
	l.Close()
	if err := l.Record(context.Background(), bridge.Event{Kind: bridge.EventLoad}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	l, err := Open(t.TempDir() + "/log/webtex.db")
	if err != nil {
		t.Fatal(err)
	}
	l.Record(context.Background(), bridge.Event{Kind: bridge.EventFrame, Cycle: 3, FrameID: "frm_x"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
