package knowledgestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
	"github.com/yungbote/contextdesk-backend/internal/chunking"
	"github.com/yungbote/contextdesk-backend/internal/logger"
)

const maxErrorBodyBytes = 1024

// DocumentStore is the size-constrained external store that persisted
// knowledge payloads must fit. Documents arrive pre-chunked; metadata
// values must already respect the per-value ceiling.
type DocumentStore interface {
	PutDocument(ctx context.Context, namespace string, doc *chunking.ChunkedDocument, metadata map[string]string) error
	DeleteDocument(ctx context.Context, namespace, documentID string) error
}

type documentStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	http     *http.Client
}

func NewDocumentStore(log *logger.Logger, cfg Config) (DocumentStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &documentStore{
		log:      log.With("service", "KnowledgeDocumentStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
	log.Info(
		"Knowledge document store selected",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"max_doc_bytes", cfg.MaxDocumentBytes,
		"max_meta_bytes", cfg.MaxMetadataValueBytes,
	)
	return s, nil
}

type putDocumentRequest struct {
	Namespace string            `json:"namespace"`
	ID        string            `json:"id"`
	Chunks    []chunking.Chunk  `json:"chunks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *documentStore) PutDocument(ctx context.Context, namespace string, doc *chunking.ChunkedDocument, metadata map[string]string) error {
	const op = "put_document"
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return opErr(op, OperationErrorValidation, "document id is required", nil)
	}
	for _, ch := range doc.Chunks {
		// Oversized single-token chunks are accepted up to the hard
		// ceiling; anything else over the per-chunk limit is a caller bug.
		if len(ch.Text) > s.cfg.MaxDocumentBytes && strings.ContainsAny(ch.Text, " \t\n") {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("chunk %d of %q exceeds %d bytes", ch.Index, doc.ID, s.cfg.MaxDocumentBytes), nil)
		}
	}
	for k, v := range metadata {
		if len(v) > s.cfg.MaxMetadataValueBytes {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("metadata value %q exceeds %d bytes", k, s.cfg.MaxMetadataValueBytes), nil)
		}
	}

	body := putDocumentRequest{
		Namespace: s.qualifyNamespace(namespace),
		ID:        doc.ID,
		Chunks:    doc.Chunks,
		Metadata:  metadata,
	}
	path := fmt.Sprintf("/collections/%s/documents", s.cfg.Collection)
	return s.do(ctx, op, http.MethodPut, path, body)
}

func (s *documentStore) DeleteDocument(ctx context.Context, namespace, documentID string) error {
	const op = "delete_document"
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return opErr(op, OperationErrorValidation, "document id is required", nil)
	}
	path := fmt.Sprintf("/collections/%s/documents/delete", s.cfg.Collection)
	body := map[string]any{
		"namespace": s.qualifyNamespace(namespace),
		"ids":       []string{documentID},
	}
	return s.do(ctx, op, http.MethodPost, path, body)
}

func (s *documentStore) do(ctx context.Context, op, method, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return opErr(op, OperationErrorEncodeFailed, "", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return opErr(op, OperationErrorEncodeFailed, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		code := OperationErrorTransportFailed
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			code = OperationErrorTimeout
		}
		return opErr(op, code, "", fmt.Errorf("%v: %w", err, apperr.ErrStorageUnavailable))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	cause := error(nil)
	if resp.StatusCode >= 500 {
		cause = apperr.ErrStorageUnavailable
	}
	return &OperationError{
		Code:       OperationErrorRequestFailed,
		Operation:  op,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(snippet)),
		Cause:      cause,
	}
}

func (s *documentStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}
