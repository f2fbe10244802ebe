package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/repos"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

// DefaultNamespaceID is the shared namespace every component reads.
// Real profile ids are any other value.
var DefaultNamespaceID = uuid.Nil

type RecordInput struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

type MessageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextDataService is the only surface that mutates scoped records
// and messages. Every operation is exact-scoped by (userID, namespaceID):
// a mutation in one namespace never touches another.
type ContextDataService interface {
	CreateRecord(ctx context.Context, userID, namespaceID uuid.UUID, in RecordInput) (*types.ContextRecord, error)
	ListRecords(ctx context.Context, userID, namespaceID uuid.UUID) ([]*types.ContextRecord, error)
	UpdateRecord(ctx context.Context, userID, namespaceID, recordID uuid.UUID, in RecordInput) (*types.ContextRecord, error)
	DeleteRecord(ctx context.Context, userID, namespaceID, recordID uuid.UUID) error
	CreateMessage(ctx context.Context, userID, namespaceID uuid.UUID, in MessageInput) (*types.ContextMessage, error)
	ListMessages(ctx context.Context, userID, namespaceID uuid.UUID) ([]*types.ContextMessage, error)
	DeleteMessage(ctx context.Context, userID, namespaceID, messageID uuid.UUID) error
}

type contextDataService struct {
	db          *gorm.DB
	log         *logger.Logger
	recordRepo  repos.ContextRecordRepo
	messageRepo repos.ContextMessageRepo
	opTimeout   time.Duration
}

func NewContextDataService(db *gorm.DB, baseLog *logger.Logger, recordRepo repos.ContextRecordRepo, messageRepo repos.ContextMessageRepo, opTimeout time.Duration) ContextDataService {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &contextDataService{
		db:          db,
		log:         baseLog.With("service", "ContextDataService"),
		recordRepo:  recordRepo,
		messageRepo: messageRepo,
		opTimeout:   opTimeout,
	}
}

func (s *contextDataService) CreateRecord(ctx context.Context, userID, namespaceID uuid.UUID, in RecordInput) (*types.ContextRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id required")
	}
	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("record requires a title or content")
	}
	now := time.Now().UTC()
	rec := &types.ContextRecord{
		ID:          uuid.New(),
		UserID:      userID,
		NamespaceID: namespaceID,
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		Source:      strings.TrimSpace(in.Source),
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.recordRepo.Create(ctx, nil, []*types.ContextRecord{rec})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", apperr.WrapStorage(err))
	}
	return created[0], nil
}

func (s *contextDataService) ListRecords(ctx context.Context, userID, namespaceID uuid.UUID) ([]*types.ContextRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	records, err := s.recordRepo.GetByScope(ctx, nil, userID, namespaceID)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	return records, nil
}

func (s *contextDataService) UpdateRecord(ctx context.Context, userID, namespaceID, recordID uuid.UUID, in RecordInput) (*types.ContextRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if strings.TrimSpace(in.Title) != "" {
		updates["title"] = strings.TrimSpace(in.Title)
	}
	if in.Content != "" {
		updates["content"] = in.Content
	}
	if strings.TrimSpace(in.Source) != "" {
		updates["source"] = strings.TrimSpace(in.Source)
	}
	if len(in.Metadata) > 0 {
		updates["metadata"] = in.Metadata
	}

	var out *types.ContextRecord
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.recordRepo.UpdateFields(ctx, tx, userID, namespaceID, recordID, updates)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("record %s in namespace %s: %w", recordID, namespaceID, apperr.ErrNotFound)
		}
		rec, err := s.recordRepo.GetByIDInScope(ctx, tx, userID, namespaceID, recordID)
		if err != nil {
			return err
		}
		out = rec
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	return out, nil
}

func (s *contextDataService) DeleteRecord(ctx context.Context, userID, namespaceID, recordID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	n, err := s.recordRepo.DeleteByIDInScope(ctx, nil, userID, namespaceID, recordID)
	if err != nil {
		return fmt.Errorf("delete record: %w", apperr.WrapStorage(err))
	}
	if n == 0 {
		return fmt.Errorf("record %s in namespace %s: %w", recordID, namespaceID, apperr.ErrNotFound)
	}
	return nil
}

func (s *contextDataService) CreateMessage(ctx context.Context, userID, namespaceID uuid.UUID, in MessageInput) (*types.ContextMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id required")
	}
	role := strings.TrimSpace(strings.ToLower(in.Role))
	if role == "" {
		return nil, fmt.Errorf("message role required")
	}
	msg := &types.ContextMessage{
		ID:          uuid.New(),
		UserID:      userID,
		NamespaceID: namespaceID,
		Role:        role,
		Content:     in.Content,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := s.messageRepo.Create(ctx, nil, []*types.ContextMessage{msg})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", apperr.WrapStorage(err))
	}
	return created[0], nil
}

func (s *contextDataService) ListMessages(ctx context.Context, userID, namespaceID uuid.UUID) ([]*types.ContextMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	messages, err := s.messageRepo.GetByScope(ctx, nil, userID, namespaceID)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	return messages, nil
}

func (s *contextDataService) DeleteMessage(ctx context.Context, userID, namespaceID, messageID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	n, err := s.messageRepo.DeleteByIDInScope(ctx, nil, userID, namespaceID, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", apperr.WrapStorage(err))
	}
	if n == 0 {
		return fmt.Errorf("message %s in namespace %s: %w", messageID, namespaceID, apperr.ErrNotFound)
	}
	return nil
}
