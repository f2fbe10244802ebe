package chunking

import (
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
)

func newTestCodec(t *testing.T, maxDoc, maxMeta, hardCeiling int) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		MaxDocumentBytes:      maxDoc,
		MaxMetadataValueBytes: maxMeta,
		HardCeilingBytes:      hardCeiling,
	})
	if err != nil {
		t.Fatalf("NewCodec: unexpected error: %v", err)
	}
	return c
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	if _, err := NewCodec(Config{MaxDocumentBytes: 0, MaxMetadataValueBytes: 10}); err == nil {
		t.Fatalf("NewCodec: expected error for zero MaxDocumentBytes")
	}
	if _, err := NewCodec(Config{MaxDocumentBytes: 10, MaxMetadataValueBytes: -1}); err == nil {
		t.Fatalf("NewCodec: expected error for negative MaxMetadataValueBytes")
	}
	var cfgErr *ConfigError
	_, err := NewCodec(Config{MaxDocumentBytes: 10, MaxMetadataValueBytes: 10, HardCeilingBytes: -5})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("NewCodec: want *ConfigError, got %v", err)
	}
	if cfgErr.Field != "HardCeilingBytes" {
		t.Fatalf("ConfigError field: want=%q got=%q", "HardCeilingBytes", cfgErr.Field)
	}
}

func TestNewCodecDefaultsHardCeiling(t *testing.T) {
	c := newTestCodec(t, 100, 50, 0)
	if got := c.Config().HardCeilingBytes; got != 400 {
		t.Fatalf("HardCeilingBytes default: want=%d got=%d", 400, got)
	}
}

func TestSplitSmallContentIsSingleChunk(t *testing.T) {
	c := newTestCodec(t, 64, 32, 0)
	chunks, err := c.Split("fits in one chunk")
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunk count: want=1 got=%d", len(chunks))
	}
	if chunks[0].Text != "fits in one chunk" {
		t.Fatalf("chunk text: want=%q got=%q", "fits in one chunk", chunks[0].Text)
	}
	if chunks[0].Index != 0 {
		t.Fatalf("chunk index: want=0 got=%d", chunks[0].Index)
	}
}

func TestSplitTrimsPaddedContent(t *testing.T) {
	c := newTestCodec(t, 64, 32, 0)
	chunks, err := c.Split("  \n\tfits in one chunk \n ")
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunk count: want=1 got=%d", len(chunks))
	}
	if chunks[0].Text != "fits in one chunk" {
		t.Fatalf("padded content must come back trimmed: want=%q got=%q", "fits in one chunk", chunks[0].Text)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	c := newTestCodec(t, 64, 32, 0)
	chunks, err := c.Split("   \n\t  ")
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("chunk count for blank input: want=0 got=%d", len(chunks))
	}
}

func TestSplitRespectsCeilingAndOrder(t *testing.T) {
	c := newTestCodec(t, 20, 32, 0)
	content := strings.Repeat("alpha beta gamma ", 10)
	chunks, err := c.Split(content)
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("chunk count: want>=2 got=%d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Fatalf("chunk %d index: want=%d got=%d", i, i, ch.Index)
		}
		if len(ch.Text) > 20 {
			t.Fatalf("chunk %d size: want<=20 got=%d (%q)", i, len(ch.Text), ch.Text)
		}
	}
}

func TestSplitReassembleRoundTrip(t *testing.T) {
	c := newTestCodec(t, 24, 32, 0)
	content := "the quick brown fox jumps over the lazy dog again and again"
	chunks, err := c.Split(content)
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	if got := c.Reassemble(chunks); got != content {
		t.Fatalf("round trip: want=%q got=%q", content, got)
	}
}

func TestSplitOversizedTokenEmittedWhole(t *testing.T) {
	c := newTestCodec(t, 10, 32, 0)
	token := strings.Repeat("x", 25)
	chunks, err := c.Split("small " + token + " tail")
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	found := false
	for _, ch := range chunks {
		if ch.Text == token {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized token was not emitted whole: %+v", chunks)
	}
}

func TestSplitTokenPastHardCeilingFails(t *testing.T) {
	c := newTestCodec(t, 10, 32, 0)
	token := strings.Repeat("x", 41)
	_, err := c.Split("lead " + token)
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("Split: want ErrPayloadTooLarge, got %v", err)
	}
}

func TestSplitDocumentCarriesID(t *testing.T) {
	c := newTestCodec(t, 64, 32, 0)
	doc, err := c.SplitDocument("doc-1", "hello world")
	if err != nil {
		t.Fatalf("SplitDocument: unexpected error: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("document id: want=%q got=%q", "doc-1", doc.ID)
	}
	if len(doc.Chunks) != 1 {
		t.Fatalf("chunk count: want=1 got=%d", len(doc.Chunks))
	}
}

func TestTruncateMetadataValueUnchanged(t *testing.T) {
	c := newTestCodec(t, 64, 32, 0)
	if got := c.TruncateMetadataValue("short"); got != "short" {
		t.Fatalf("TruncateMetadataValue: want=%q got=%q", "short", got)
	}
}

func TestTruncateMetadataValueFitsCeiling(t *testing.T) {
	c := newTestCodec(t, 1024, 256, 0)
	value := strings.Repeat("a", 500)
	got := c.TruncateMetadataValue(value)
	if len(got) > 256 {
		t.Fatalf("truncated length: want<=256 got=%d", len(got))
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("truncated value missing marker: %q", got[len(got)-20:])
	}
	wantPrefix := 256 * 9 / 10
	if prefix := len(got) - len(TruncationMarker); prefix != wantPrefix {
		t.Fatalf("prefix length: want=%d got=%d", wantPrefix, prefix)
	}
}

func TestTruncateMetadataValueTinyCeiling(t *testing.T) {
	c := newTestCodec(t, 1024, 8, 0)
	got := c.TruncateMetadataValue("abcdefghijklmnop")
	if len(got) > 8 {
		t.Fatalf("truncated length: want<=8 got=%d (%q)", len(got), got)
	}
	if strings.Contains(got, TruncationMarker) {
		t.Fatalf("marker must be dropped when it cannot fit: %q", got)
	}
	if got != "abcdefgh" {
		t.Fatalf("tiny-ceiling cut: want=%q got=%q", "abcdefgh", got)
	}

	// Multi-byte runes never get split at the cut point.
	c = newTestCodec(t, 1024, 7, 0)
	got = c.TruncateMetadataValue(strings.Repeat("é", 10))
	if len(got) != 6 {
		t.Fatalf("rune-safe tiny cut: want len=6 got=%d (%q)", len(got), got)
	}
}

func TestTruncateMetadataValueRuneSafe(t *testing.T) {
	c := newTestCodec(t, 1024, 32, 0)
	value := strings.Repeat("é", 40)
	got := c.TruncateMetadataValue(value)
	if len(got) > 32 {
		t.Fatalf("truncated length: want<=32 got=%d", len(got))
	}
	prefix := strings.TrimSuffix(got, TruncationMarker)
	for _, r := range prefix {
		if r == '�' {
			t.Fatalf("truncation split a rune: %q", prefix)
		}
	}
}
