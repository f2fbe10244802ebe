package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
	"github.com/yungbote/contextdesk-backend/internal/chunking"
	"github.com/yungbote/contextdesk-backend/internal/clients/redis"
	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/platform/knowledgestore"
	"github.com/yungbote/contextdesk-backend/internal/repos"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

// Schedule frequencies accepted by ScheduleUnlocks.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// teachingCostPerKB prices a teaching entry by the size of what it
// adds. Every entry costs at least the base unit.
const (
	teachingBaseCost  = 1.0
	teachingCostPerKB = 0.25
)

type CreateContextInput struct {
	Name        string          `json:"name"`
	Domain      string          `json:"domain"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type TeachInput struct {
	// SessionID continues an existing teaching session when set.
	SessionID  *uuid.UUID      `json:"session_id,omitempty"`
	Source     string          `json:"source"`
	Input      string          `json:"input"`
	Learned    json.RawMessage `json:"learned"`
	Confidence float64         `json:"confidence"`
}

type TeachResult struct {
	SessionID  uuid.UUID `json:"session_id"`
	TeachingID uuid.UUID `json:"teaching_id"`
	Cost       float64   `json:"cost"`
	Version    int       `json:"version"`
}

type ScheduleInput struct {
	ContextIDs  []uuid.UUID   `json:"context_ids"`
	Frequency   string        `json:"frequency"`
	Occurrences int           `json:"occurrences"`
	Duration    time.Duration `json:"duration"`
	Authorizer  string        `json:"authorizer"`
	Reason      string        `json:"reason"`
}

// BoundedContextService owns the lock state machine: contexts are
// created locked, mutate only while unlocked inside a covering window,
// and every transition carries a reason into the audit stream.
type BoundedContextService interface {
	Create(ctx context.Context, in CreateContextInput) (*types.BoundedContext, error)
	Get(ctx context.Context, contextID uuid.UUID) (*types.BoundedContext, error)
	Unlock(ctx context.Context, contextID uuid.UUID, duration time.Duration, authorizer, reason string) (*types.UnlockWindow, error)
	Lock(ctx context.Context, contextID uuid.UUID, reason string) error
	Teach(ctx context.Context, contextID uuid.UUID, in TeachInput) (*TeachResult, error)
	Update(ctx context.Context, contextID uuid.UUID, patch json.RawMessage, reason string) (*types.BoundedContext, error)
	ScheduleUnlocks(ctx context.Context, in ScheduleInput) ([]*types.UnlockWindow, error)
	AddRelationship(ctx context.Context, contextID, peerID uuid.UUID, kind string) (*types.ContextRelationship, error)
	ReconcileLocks(ctx context.Context) ([]uuid.UUID, error)
}

type boundedContextService struct {
	db          *gorm.DB
	log         *logger.Logger
	contextRepo repos.BoundedContextRepo
	windowRepo  repos.UnlockWindowRepo
	sessionRepo repos.TeachingSessionRepo
	teachRepo   repos.TeachingRepo
	relRepo     repos.ContextRelationshipRepo
	auditBus    redis.AuditBus
	codec       *chunking.Codec
	docStore    knowledgestore.DocumentStore
	opTimeout   time.Duration

	mu           sync.Mutex
	contextLocks map[uuid.UUID]*sync.Mutex

	// now is swappable in tests.
	now func() time.Time
}

func NewBoundedContextService(
	db *gorm.DB,
	baseLog *logger.Logger,
	contextRepo repos.BoundedContextRepo,
	windowRepo repos.UnlockWindowRepo,
	sessionRepo repos.TeachingSessionRepo,
	teachRepo repos.TeachingRepo,
	relRepo repos.ContextRelationshipRepo,
	auditBus redis.AuditBus,
	codec *chunking.Codec,
	docStore knowledgestore.DocumentStore,
	opTimeout time.Duration,
) BoundedContextService {
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &boundedContextService{
		db:           db,
		log:          baseLog.With("service", "BoundedContextService"),
		contextRepo:  contextRepo,
		windowRepo:   windowRepo,
		sessionRepo:  sessionRepo,
		teachRepo:    teachRepo,
		relRepo:      relRepo,
		auditBus:     auditBus,
		codec:        codec,
		docStore:     docStore,
		opTimeout:    opTimeout,
		contextLocks: make(map[uuid.UUID]*sync.Mutex),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *boundedContextService) lockContext(contextID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.contextLocks[contextID]
	if !ok {
		lock = &sync.Mutex{}
		s.contextLocks[contextID] = lock
	}
	return lock
}

func (s *boundedContextService) Create(ctx context.Context, in CreateContextInput) (*types.BoundedContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("context name required")
	}

	var out *types.BoundedContext
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.contextRepo.NameExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("context name %q: %w", name, apperr.ErrDuplicateName)
		}
		payload := in.Payload
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		var obj map[string]any
		if err := json.Unmarshal(payload, &obj); err != nil {
			return fmt.Errorf("initial payload must be a JSON object: %w", err)
		}
		now := s.now()
		bc := &types.BoundedContext{
			ID:              uuid.New(),
			Name:            name,
			Domain:          strings.TrimSpace(in.Domain),
			Description:     strings.TrimSpace(in.Description),
			LockStatus:      types.LockStatusLocked,
			Version:         1,
			Cost:            0,
			ComplexityScore: float64(payloadSizeBytes(payload)) / 1024.0,
			Payload:         datatypes.JSON(payload),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created, err := s.contextRepo.Create(ctx, tx, []*types.BoundedContext{bc})
		if err != nil {
			return err
		}
		out = created[0]
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	s.publish(ctx, out.ID, "create", "created locked")
	return out, nil
}

func (s *boundedContextService) Get(ctx context.Context, contextID uuid.UUID) (*types.BoundedContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	bc, err := s.contextRepo.GetByID(ctx, nil, contextID)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	if bc == nil {
		return nil, fmt.Errorf("context %s: %w", contextID, apperr.ErrNotFound)
	}
	return bc, nil
}

func (s *boundedContextService) Unlock(ctx context.Context, contextID uuid.UUID, duration time.Duration, authorizer, reason string) (*types.UnlockWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if duration <= 0 {
		return nil, fmt.Errorf("unlock duration must be positive")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("unlock reason required")
	}

	lock := s.lockContext(contextID)
	lock.Lock()
	defer lock.Unlock()

	var window *types.UnlockWindow
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bc, err := s.contextRepo.GetByID(ctx, tx, contextID)
		if err != nil {
			return err
		}
		if bc == nil {
			return fmt.Errorf("context %s: %w", contextID, apperr.ErrNotFound)
		}
		now := s.now()
		w := &types.UnlockWindow{
			ID:               uuid.New(),
			BoundedContextID: contextID,
			StartsAt:         now,
			EndsAt:           now.Add(duration),
			Authorizer:       strings.TrimSpace(authorizer),
			Reason:           strings.TrimSpace(reason),
			CreatedAt:        now,
		}
		if _, err := s.windowRepo.Create(ctx, tx, []*types.UnlockWindow{w}); err != nil {
			return err
		}
		if err := s.contextRepo.UpdateFields(ctx, tx, contextID, map[string]interface{}{
			"lock_status": types.LockStatusUnlocked,
			"updated_at":  now,
		}); err != nil {
			return err
		}
		window = w
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	s.publish(ctx, contextID, "unlock", reason)
	s.log.Info("context unlocked", "context_id", contextID, "until", window.EndsAt)
	return window, nil
}

func (s *boundedContextService) Lock(ctx context.Context, contextID uuid.UUID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	lock := s.lockContext(contextID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bc, err := s.contextRepo.GetByID(ctx, tx, contextID)
		if err != nil {
			return err
		}
		if bc == nil {
			return fmt.Errorf("context %s: %w", contextID, apperr.ErrNotFound)
		}
		return s.contextRepo.UpdateFields(ctx, tx, contextID, map[string]interface{}{
			"lock_status": types.LockStatusLocked,
			"updated_at":  s.now(),
		})
	}); err != nil {
		return apperr.WrapStorage(err)
	}
	s.publish(ctx, contextID, "lock", reason)
	return nil
}

// ReconcileLocks relocks every context still marked unlocked whose
// windows have all lapsed. Meant to run at startup and on a timer so
// the stored status catches up with window expiry.
func (s *boundedContextService) ReconcileLocks(ctx context.Context) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var relocked []uuid.UUID
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contexts, err := s.contextRepo.GetAll(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		for _, bc := range contexts {
			if bc.LockStatus != types.LockStatusUnlocked {
				continue
			}
			covered, err := s.windowRepo.CoveringExists(ctx, tx, bc.ID, now)
			if err != nil {
				return err
			}
			if covered {
				continue
			}
			if err := s.contextRepo.UpdateFields(ctx, tx, bc.ID, map[string]interface{}{
				"lock_status": types.LockStatusLocked,
				"updated_at":  now,
			}); err != nil {
				return err
			}
			relocked = append(relocked, bc.ID)
		}
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	for _, id := range relocked {
		s.publish(ctx, id, "lock", "unlock window lapsed")
	}
	if len(relocked) > 0 {
		s.log.Info("relocked lapsed contexts", "count", len(relocked))
	}
	return relocked, nil
}

// requireUnlocked enforces the gate: the context must be marked
// unlocked and the current instant must fall inside a window.
func (s *boundedContextService) requireUnlocked(ctx context.Context, tx *gorm.DB, bc *types.BoundedContext) error {
	if bc.LockStatus != types.LockStatusUnlocked {
		return fmt.Errorf("context %s is locked: %w", bc.ID, apperr.ErrContextLocked)
	}
	covered, err := s.windowRepo.CoveringExists(ctx, tx, bc.ID, s.now())
	if err != nil {
		return err
	}
	if !covered {
		return fmt.Errorf("no unlock window covers context %s now: %w", bc.ID, apperr.ErrContextLocked)
	}
	return nil
}

func teachingCost(learned json.RawMessage, input string) float64 {
	size := len(learned) + len(input)
	return teachingBaseCost + teachingCostPerKB*float64(size)/1024.0
}

func (s *boundedContextService) Teach(ctx context.Context, contextID uuid.UUID, in TeachInput) (*TeachResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if len(in.Learned) == 0 && strings.TrimSpace(in.Input) == "" {
		return nil, fmt.Errorf("teaching requires input or learned payload")
	}

	lock := s.lockContext(contextID)
	lock.Lock()
	defer lock.Unlock()

	result := &TeachResult{}
	var merged json.RawMessage
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bc, err := s.contextRepo.GetByID(ctx, tx, contextID)
		if err != nil {
			return err
		}
		if bc == nil {
			return fmt.Errorf("context %s: %w", contextID, apperr.ErrNotFound)
		}
		if err := s.requireUnlocked(ctx, tx, bc); err != nil {
			return err
		}
		now := s.now()

		var sessionID uuid.UUID
		if in.SessionID != nil {
			session, err := s.sessionRepo.GetByID(ctx, tx, *in.SessionID)
			if err != nil {
				return err
			}
			if session == nil || session.BoundedContextID != contextID {
				return fmt.Errorf("teaching session %s: %w", *in.SessionID, apperr.ErrNotFound)
			}
			sessionID = session.ID
		} else {
			session := &types.TeachingSession{
				ID:               uuid.New(),
				BoundedContextID: contextID,
				Source:           strings.TrimSpace(in.Source),
				Confidence:       in.Confidence,
				Cost:             0,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if _, err := s.sessionRepo.Create(ctx, tx, []*types.TeachingSession{session}); err != nil {
				return err
			}
			sessionID = session.ID
		}

		position, err := s.teachRepo.CountBySessionID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		cost := teachingCost(in.Learned, in.Input)
		teaching := &types.Teaching{
			ID:                uuid.New(),
			TeachingSessionID: sessionID,
			Position:          int(position),
			Input:             in.Input,
			Learned:           datatypes.JSON(in.Learned),
			Confidence:        in.Confidence,
			Cost:              cost,
			CreatedAt:         now,
		}
		if _, err := s.teachRepo.Create(ctx, tx, []*types.Teaching{teaching}); err != nil {
			return err
		}
		if err := s.sessionRepo.AddCost(ctx, tx, sessionID, cost); err != nil {
			return err
		}

		merged, err = mergeJSONObjects(json.RawMessage(bc.Payload), in.Learned)
		if err != nil {
			return fmt.Errorf("merge learned payload: %w", err)
		}
		score, err := s.complexityScore(ctx, tx, bc, merged)
		if err != nil {
			return err
		}
		if err := s.contextRepo.UpdateFields(ctx, tx, contextID, map[string]interface{}{
			"payload":          datatypes.JSON(merged),
			"cost":             gorm.Expr("cost + ?", cost),
			"version":          gorm.Expr("version + 1"),
			"complexity_score": score,
			"updated_at":       now,
		}); err != nil {
			return err
		}

		result.SessionID = sessionID
		result.TeachingID = teaching.ID
		result.Cost = cost
		result.Version = bc.Version + 1
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}

	s.persistPayload(ctx, contextID, merged)
	s.publish(ctx, contextID, "teach", in.Source)
	return result, nil
}

func (s *boundedContextService) Update(ctx context.Context, contextID uuid.UUID, patch json.RawMessage, reason string) (*types.BoundedContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("update reason required")
	}

	lock := s.lockContext(contextID)
	lock.Lock()
	defer lock.Unlock()

	var out *types.BoundedContext
	var merged json.RawMessage
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bc, err := s.contextRepo.GetByID(ctx, tx, contextID)
		if err != nil {
			return err
		}
		if bc == nil {
			return fmt.Errorf("context %s: %w", contextID, apperr.ErrNotFound)
		}
		if err := s.requireUnlocked(ctx, tx, bc); err != nil {
			return err
		}
		merged, err = mergeJSONObjects(json.RawMessage(bc.Payload), patch)
		if err != nil {
			return fmt.Errorf("merge payload: %w", err)
		}
		score, err := s.complexityScore(ctx, tx, bc, merged)
		if err != nil {
			return err
		}
		if err := s.contextRepo.UpdateFields(ctx, tx, contextID, map[string]interface{}{
			"payload":          datatypes.JSON(merged),
			"version":          gorm.Expr("version + 1"),
			"complexity_score": score,
			"updated_at":       s.now(),
		}); err != nil {
			return err
		}
		out, err = s.contextRepo.GetByID(ctx, tx, contextID)
		return err
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}

	s.persistPayload(ctx, contextID, merged)
	s.publish(ctx, contextID, "update", reason)
	return out, nil
}

func (s *boundedContextService) ScheduleUnlocks(ctx context.Context, in ScheduleInput) ([]*types.UnlockWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if len(in.ContextIDs) == 0 {
		return nil, fmt.Errorf("at least one context id required")
	}
	if in.Duration <= 0 {
		return nil, fmt.Errorf("window duration must be positive")
	}
	if in.Occurrences <= 0 {
		in.Occurrences = 1
	}
	var step func(time.Time, int) time.Time
	switch in.Frequency {
	case FrequencyDaily:
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, 0, i) }
	case FrequencyWeekly:
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, 0, 7*i) }
	case FrequencyMonthly:
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, i, 0) }
	default:
		return nil, fmt.Errorf("unknown frequency %q", in.Frequency)
	}

	var windows []*types.UnlockWindow
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contexts, err := s.contextRepo.GetByIDs(ctx, tx, in.ContextIDs)
		if err != nil {
			return err
		}
		if len(contexts) != len(in.ContextIDs) {
			return fmt.Errorf("one or more contexts missing: %w", apperr.ErrNotFound)
		}
		now := s.now()
		for _, bc := range contexts {
			for i := 0; i < in.Occurrences; i++ {
				start := step(now, i)
				windows = append(windows, &types.UnlockWindow{
					ID:               uuid.New(),
					BoundedContextID: bc.ID,
					StartsAt:         start,
					EndsAt:           start.Add(in.Duration),
					Authorizer:       strings.TrimSpace(in.Authorizer),
					Reason:           strings.TrimSpace(in.Reason),
					CreatedAt:        now,
				})
			}
		}
		_, err = s.windowRepo.Create(ctx, tx, windows)
		return err
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}

	for _, id := range in.ContextIDs {
		s.publish(ctx, id, "schedule", in.Reason)
	}
	s.log.Info("unlock windows scheduled", "contexts", len(in.ContextIDs), "frequency", in.Frequency, "occurrences", in.Occurrences)
	return windows, nil
}

func (s *boundedContextService) AddRelationship(ctx context.Context, contextID, peerID uuid.UUID, kind string) (*types.ContextRelationship, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if contextID == peerID {
		return nil, fmt.Errorf("context cannot relate to itself")
	}

	lock := s.lockContext(contextID)
	lock.Lock()
	defer lock.Unlock()

	var rel *types.ContextRelationship
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contexts, err := s.contextRepo.GetByIDs(ctx, tx, []uuid.UUID{contextID, peerID})
		if err != nil {
			return err
		}
		if len(contexts) != 2 {
			return fmt.Errorf("context or peer missing: %w", apperr.ErrNotFound)
		}
		var bc *types.BoundedContext
		for _, c := range contexts {
			if c.ID == contextID {
				bc = c
			}
		}
		if bc == nil {
			return fmt.Errorf("context %s: %w", contextID, apperr.ErrNotFound)
		}
		now := s.now()
		rel = &types.ContextRelationship{
			ID:               uuid.New(),
			BoundedContextID: contextID,
			PeerContextID:    peerID,
			Kind:             strings.TrimSpace(kind),
			CreatedAt:        now,
		}
		if _, err := s.relRepo.Create(ctx, tx, []*types.ContextRelationship{rel}); err != nil {
			return err
		}
		score, err := s.complexityScore(ctx, tx, bc, json.RawMessage(bc.Payload))
		if err != nil {
			return err
		}
		return s.contextRepo.UpdateFields(ctx, tx, contextID, map[string]interface{}{
			"complexity_score": score,
			"updated_at":       now,
		})
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	return rel, nil
}

// complexityScore derives the score from current counts plus the
// payload that is about to be written, clamped to the stored score. A
// merge that replaces a key with a smaller value can shrink payload
// bytes, so the clamp is what keeps the score non-decreasing.
func (s *boundedContextService) complexityScore(ctx context.Context, tx *gorm.DB, bc *types.BoundedContext, payload json.RawMessage) (float64, error) {
	relationships, err := s.relRepo.CountByContextID(ctx, tx, bc.ID)
	if err != nil {
		return 0, err
	}
	sessions, err := s.sessionRepo.CountByContextID(ctx, tx, bc.ID)
	if err != nil {
		return 0, err
	}
	score := float64(payloadSizeBytes(payload))/1024.0 +
		2.0*float64(relationships) +
		3.0*float64(sessions)
	if score < bc.ComplexityScore {
		score = bc.ComplexityScore
	}
	return score, nil
}

// persistPayload mirrors the merged payload into the external document
// store. Failures are logged, not surfaced: the database row is the
// source of truth and the mirror is rebuilt on the next write.
func (s *boundedContextService) persistPayload(ctx context.Context, contextID uuid.UUID, payload json.RawMessage) {
	if s.docStore == nil || s.codec == nil || len(payload) == 0 {
		return
	}
	doc, err := s.codec.SplitDocument(contextID.String(), string(payload))
	if err != nil {
		s.log.Warn("chunk context payload failed", "context_id", contextID, "error", err)
		return
	}
	metadata := map[string]string{
		"context_id": contextID.String(),
	}
	if err := s.docStore.PutDocument(ctx, "contexts", doc, metadata); err != nil {
		s.log.Warn("mirror context payload failed", "context_id", contextID, "error", err)
	}
}

func (s *boundedContextService) publish(ctx context.Context, contextID uuid.UUID, transition, reason string) {
	if s.auditBus == nil {
		return
	}
	s.auditBus.Publish(ctx, redis.AuditEvent{
		Subject:    "bounded_context",
		SubjectID:  contextID.String(),
		Transition: transition,
		Reason:     reason,
		At:         s.now(),
	})
}
