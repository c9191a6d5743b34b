package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pcruz7/tgarc/internal/bus"
	"github.com/pcruz7/tgarc/internal/store"
	"github.com/pcruz7/tgarc/internal/tg"
	"go.uber.org/zap"
)

type fakeRecorder struct {
	calls   int
	batches [][]*store.Message
	err     error
}

func (f *fakeRecorder) RecordMessages(batch []*store.Message) error {
	if f.err != nil {
		return f.err
	}
	f.calls++
	f.batches = append(f.batches, batch)
	return nil
}

type fakeProvider struct {
	dim  int
	err  error
	seen []string
}

func (f *fakeProvider) Dimension() int { return f.dim }

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seen = append(f.seen, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

type fakeDownloader struct {
	calls int
	fail  bool
}

func (f *fakeDownloader) DownloadMedia(ctx context.Context, ref *tg.RawMedia, destDir string) (string, int64, error) {
	f.calls++
	if f.fail {
		return "", 0, errors.New("download failed")
	}
	return filepath.Join(destDir, ref.Ref+".bin"), 42, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	return New(rec, bus.New(zap.NewNop()), zap.NewNop()), rec
}

func makeBatch(n int) []*store.Message {
	batch := make([]*store.Message, n)
	for i := range batch {
		batch[i] = &store.Message{
			ID:            fmt.Sprintf("msg-%d", i),
			Platform:      "telegram",
			PlatformMsgID: fmt.Sprintf("%d", i+1),
			ChatID:        "100",
			FromID:        "7",
			FromName:      "Alice",
			Content:       fmt.Sprintf("Hello message %d", i),
		}
	}
	return batch
}

func TestProcessRecordsRawBatchFirst(t *testing.T) {
	p, rec := newTestPipeline(t)

	batch := makeBatch(3)
	if err := p.Process(context.Background(), batch); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("expected 1 record call with no resolvers, got %d", rec.calls)
	}
	if len(rec.batches[0]) != 3 {
		t.Fatalf("expected 3 messages recorded, got %d", len(rec.batches[0]))
	}
}

func TestProcessEmptyBatchIsNoOp(t *testing.T) {
	p, rec := newTestPipeline(t)
	if err := p.Process(context.Background(), nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("expected no record calls, got %d", rec.calls)
	}
}

func TestProcessFailsWhenInitialRecordFails(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	p := New(rec, bus.New(zap.NewNop()), zap.NewNop())
	if err := p.Process(context.Background(), makeBatch(1)); err == nil {
		t.Fatal("expected error when the raw batch cannot be recorded")
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.Register(NewTokenizeResolver()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := p.Register(NewTokenizeResolver()); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if got := p.Names(); !reflect.DeepEqual(got, []string{"tokenize"}) {
		t.Fatalf("Names = %v", got)
	}
}

// A failing resolver must not drop messages or halt the stages before it:
// all messages stay recorded with the earlier enrichment applied.
func TestResolverFailureIsIsolated(t *testing.T) {
	p, rec := newTestPipeline(t)
	if err := p.Register(NewTokenizeResolver()); err != nil {
		t.Fatal(err)
	}
	if err := p.Register(NewEmbedResolver(&fakeProvider{dim: 4, err: errors.New("provider down")})); err != nil {
		t.Fatal(err)
	}

	batch := makeBatch(5)
	if err := p.Process(context.Background(), batch); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Raw record plus the tokenize output; nothing for the failed stage.
	if rec.calls != 2 {
		t.Fatalf("expected 2 record calls, got %d", rec.calls)
	}
	for _, m := range batch {
		if len(m.Tokens) == 0 {
			t.Fatalf("message %s lost its tokens", m.ID)
		}
		if m.Vector != nil || m.VectorDim != 0 {
			t.Fatalf("message %s has a vector from a failed stage", m.ID)
		}
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"Hello, World!", []string{"hello", "world"}},
		{"check https://example.com now", []string{"check", "https", "example.com", "now"}},
		{"  ...  ", nil},
		{"UPPER lower 42", []string{"upper", "lower", "42"}},
	}
	for _, tc := range cases {
		if got := Tokenize(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestEmbedResolverSkipsEmptyContent(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	r := NewEmbedResolver(provider)

	batch := makeBatch(3)
	batch[1].Content = ""

	out, err := r.Run(context.Background(), batch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.seen) != 2 {
		t.Fatalf("expected 2 texts embedded, got %d", len(provider.seen))
	}
	if out[1].Vector != nil {
		t.Fatal("empty message should not get a vector")
	}
	for _, i := range []int{0, 2} {
		if len(out[i].Vector) != 4 || out[i].VectorDim != 4 {
			t.Fatalf("message %d: vector %v dim %d", i, out[i].Vector, out[i].VectorDim)
		}
	}
}

func TestMediaResolverDownloads(t *testing.T) {
	dl := &fakeDownloader{}
	r := NewMediaResolver(dl, t.TempDir(), false, zap.NewNop())

	batch := makeBatch(2)
	batch[0].Media = []store.MediaRef{{Type: "photo", Ref: "abc"}}

	var out []*store.Message
	for m := range r.Stream(context.Background(), batch) {
		out = append(out, m)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 messages streamed, got %d", len(out))
	}
	ref := out[0].Media[0]
	if ref.Path == "" || ref.Size != 42 {
		t.Fatalf("media not resolved: %+v", ref)
	}
	if dl.calls != 1 {
		t.Fatalf("expected 1 download, got %d", dl.calls)
	}
}

func TestMediaResolverSkipFlag(t *testing.T) {
	dl := &fakeDownloader{}
	r := NewMediaResolver(dl, t.TempDir(), true, zap.NewNop())

	batch := makeBatch(1)
	batch[0].Media = []store.MediaRef{{Type: "photo", Ref: "abc"}}

	for range r.Stream(context.Background(), batch) {
	}
	if dl.calls != 0 {
		t.Fatalf("expected no downloads with media skipped, got %d", dl.calls)
	}
	if batch[0].Media[0].Path != "" {
		t.Fatal("skipped media should stay pending")
	}
}

func TestMediaResolverFailureLeavesRefPending(t *testing.T) {
	dl := &fakeDownloader{fail: true}
	r := NewMediaResolver(dl, t.TempDir(), false, zap.NewNop())

	batch := makeBatch(1)
	batch[0].Media = []store.MediaRef{{Type: "document", Ref: "xyz"}}

	var got int
	for range r.Stream(context.Background(), batch) {
		got++
	}
	if got != 1 {
		t.Fatalf("message with failed media must still be emitted, got %d", got)
	}
	if batch[0].Media[0].Path != "" {
		t.Fatal("failed download should leave the ref pending")
	}
}

func TestSenderResolverLearnsAcrossBatches(t *testing.T) {
	r := NewSenderResolver()

	first := makeBatch(1)
	if _, err := r.Run(context.Background(), first); err != nil {
		t.Fatal(err)
	}

	second := makeBatch(2)
	second[0].FromName = ""
	second[1].FromID = "99"
	second[1].FromName = ""

	out, err := r.Run(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].FromName != "Alice" {
		t.Fatalf("expected learned name, got %q", out[0].FromName)
	}
	if out[1].FromName != "" {
		t.Fatalf("unknown sender should stay empty, got %q", out[1].FromName)
	}
}

func TestProcessDispatchesStreamResolver(t *testing.T) {
	p, rec := newTestPipeline(t)
	dl := &fakeDownloader{}
	if err := p.Register(NewMediaResolver(dl, t.TempDir(), false, zap.NewNop())); err != nil {
		t.Fatal(err)
	}

	batch := makeBatch(2)
	batch[1].Media = []store.MediaRef{{Type: "voice", Ref: "v1"}}
	if err := p.Process(context.Background(), batch); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.calls != 2 {
		t.Fatalf("expected raw + resolved record calls, got %d", rec.calls)
	}
	if batch[1].Media[0].Path == "" {
		t.Fatal("stream resolver output not applied")
	}
}
