// Package chunking splits oversized knowledge payloads into chunks that
// fit the external document store's byte ceilings, and reassembles them.
package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
)

// TruncationMarker is appended to metadata values cut down to size.
const TruncationMarker = " [TRUNCATED]"

// Config carries the byte ceilings of a specific external store. The
// ceilings are properties of that store and are injected, never assumed.
type Config struct {
	// MaxDocumentBytes is the per-chunk ceiling.
	MaxDocumentBytes int
	// MaxMetadataValueBytes is the per-metadata-value ceiling.
	MaxMetadataValueBytes int
	// HardCeilingBytes is the absolute per-document limit. A single
	// whitespace-free token above it cannot be stored at all. Zero
	// defaults to 4x MaxDocumentBytes.
	HardCeilingBytes int
}

type ConfigError struct {
	Field string
	Value int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid chunking config: %s=%d; expected positive integer", e.Field, e.Value)
}

// Chunk is one piece of a ChunkedDocument.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ChunkedDocument is an ordered chunk sequence sharing a logical id.
type ChunkedDocument struct {
	ID     string  `json:"id"`
	Chunks []Chunk `json:"chunks"`
}

type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if cfg.MaxDocumentBytes <= 0 {
		return nil, &ConfigError{Field: "MaxDocumentBytes", Value: cfg.MaxDocumentBytes}
	}
	if cfg.MaxMetadataValueBytes <= 0 {
		return nil, &ConfigError{Field: "MaxMetadataValueBytes", Value: cfg.MaxMetadataValueBytes}
	}
	if cfg.HardCeilingBytes < 0 {
		return nil, &ConfigError{Field: "HardCeilingBytes", Value: cfg.HardCeilingBytes}
	}
	if cfg.HardCeilingBytes == 0 {
		cfg.HardCeilingBytes = 4 * cfg.MaxDocumentBytes
	}
	return &Codec{cfg: cfg}, nil
}

func (c *Codec) Config() Config {
	return c.cfg
}

// Split cuts content into ordered chunks of at most MaxDocumentBytes,
// breaking only at whitespace. Leading and trailing whitespace is
// trimmed first, so padded content that fits comes back as a single
// chunk holding the trimmed text, not the original. A whitespace-free
// token longer than the ceiling is
// emitted whole as an oversized chunk rather than cut mid-token; that
// is an accepted violation of the size contract, bounded by
// HardCeilingBytes, past which Split fails with ErrPayloadTooLarge.
func (c *Codec) Split(content string) ([]Chunk, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return []Chunk{}, nil
	}
	if len(content) <= c.cfg.MaxDocumentBytes {
		return []Chunk{{Index: 0, Text: content}}, nil
	}

	words := strings.Fields(content)
	out := []Chunk{}
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		out = append(out, Chunk{Index: len(out), Text: cur.String()})
		cur.Reset()
	}
	for _, w := range words {
		if len(w) > c.cfg.MaxDocumentBytes {
			if len(w) > c.cfg.HardCeilingBytes {
				return nil, fmt.Errorf("token of %d bytes exceeds hard ceiling %d: %w", len(w), c.cfg.HardCeilingBytes, apperr.ErrPayloadTooLarge)
			}
			flush()
			out = append(out, Chunk{Index: len(out), Text: w})
			continue
		}
		need := len(w)
		if cur.Len() > 0 {
			need += 1
		}
		if cur.Len()+need > c.cfg.MaxDocumentBytes {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	flush()
	return out, nil
}

// SplitDocument wraps Split under a shared logical id.
func (c *Codec) SplitDocument(id, content string) (*ChunkedDocument, error) {
	chunks, err := c.Split(content)
	if err != nil {
		return nil, err
	}
	return &ChunkedDocument{ID: id, Chunks: chunks}, nil
}

// Reassemble concatenates chunks with single spaces. It is the left
// inverse of Split for inputs whose token separators are single spaces.
func (c *Codec) Reassemble(chunks []Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Text == "" {
			continue
		}
		parts = append(parts, ch.Text)
	}
	return strings.Join(parts, " ")
}

// TruncateMetadataValue returns the value unchanged when it fits the
// per-value ceiling, else the largest rune-safe prefix at roughly 90%
// of the ceiling plus the truncation marker, never exceeding the
// ceiling in total. A ceiling too small to hold the marker gets a
// plain rune-safe cut with no marker.
func (c *Codec) TruncateMetadataValue(value string) string {
	max := c.cfg.MaxMetadataValueBytes
	if len(value) <= max {
		return value
	}
	if max < len(TruncationMarker) {
		cut := max
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		return value[:cut]
	}
	cut := max * 9 / 10
	if cut > max-len(TruncationMarker) {
		cut = max - len(TruncationMarker)
	}
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + TruncationMarker
}
