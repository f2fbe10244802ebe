package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/repos"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

// NetworkContext is one context plus its per-context rollups.
type NetworkContext struct {
	Context       *types.BoundedContext        `json:"context"`
	UnlockWindows int64                        `json:"unlock_windows"`
	Relationships []*types.ContextRelationship `json:"relationships,omitempty"`
}

// NetworkView is the fleet-wide aggregate over every bounded context.
type NetworkView struct {
	Contexts          []NetworkContext `json:"contexts"`
	TotalContexts     int              `json:"total_contexts"`
	LockedContexts    int              `json:"locked_contexts"`
	UnlockedContexts  int              `json:"unlocked_contexts"`
	TotalCost         float64          `json:"total_cost"`
	AverageComplexity float64          `json:"average_complexity"`
	TotalWindows      int64            `json:"total_windows"`
	TotalSessions     int64            `json:"total_sessions"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

type NetworkService interface {
	Network(ctx context.Context) (*NetworkView, error)
}

type networkService struct {
	db          *gorm.DB
	log         *logger.Logger
	contextRepo repos.BoundedContextRepo
	windowRepo  repos.UnlockWindowRepo
	sessionRepo repos.TeachingSessionRepo
	relRepo     repos.ContextRelationshipRepo
	opTimeout   time.Duration
}

func NewNetworkService(
	db *gorm.DB,
	baseLog *logger.Logger,
	contextRepo repos.BoundedContextRepo,
	windowRepo repos.UnlockWindowRepo,
	sessionRepo repos.TeachingSessionRepo,
	relRepo repos.ContextRelationshipRepo,
	opTimeout time.Duration,
) NetworkService {
	if opTimeout <= 0 {
		opTimeout = 15 * time.Second
	}
	return &networkService{
		db:          db,
		log:         baseLog.With("service", "NetworkService"),
		contextRepo: contextRepo,
		windowRepo:  windowRepo,
		sessionRepo: sessionRepo,
		relRepo:     relRepo,
		opTimeout:   opTimeout,
	}
}

func (s *networkService) Network(ctx context.Context) (*NetworkView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	contexts, err := s.contextRepo.GetAll(ctx, nil)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	ids := make([]uuid.UUID, 0, len(contexts))
	for _, bc := range contexts {
		ids = append(ids, bc.ID)
	}

	var (
		windowCounts  map[uuid.UUID]int64
		totalSessions int64
		relsByContext = make(map[uuid.UUID][]*types.ContextRelationship, len(contexts))
		relMu         sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.windowRepo.CountByContextIDs(gctx, nil, ids)
		if err != nil {
			return err
		}
		windowCounts = counts
		return nil
	})
	g.Go(func() error {
		n, err := s.sessionRepo.CountAll(gctx, nil)
		if err != nil {
			return err
		}
		totalSessions = n
		return nil
	})
	for _, bc := range contexts {
		contextID := bc.ID
		g.Go(func() error {
			rels, err := s.relRepo.GetByContextID(gctx, nil, contextID)
			if err != nil {
				return err
			}
			relMu.Lock()
			relsByContext[contextID] = rels
			relMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.WrapStorage(err)
	}

	view := &NetworkView{
		Contexts:      make([]NetworkContext, 0, len(contexts)),
		TotalContexts: len(contexts),
		TotalSessions: totalSessions,
		GeneratedAt:   time.Now().UTC(),
	}
	var complexitySum float64
	for _, bc := range contexts {
		switch bc.LockStatus {
		case types.LockStatusUnlocked:
			view.UnlockedContexts++
		default:
			view.LockedContexts++
		}
		view.TotalCost += bc.Cost
		complexitySum += bc.ComplexityScore
		windows := windowCounts[bc.ID]
		view.TotalWindows += windows
		view.Contexts = append(view.Contexts, NetworkContext{
			Context:       bc,
			UnlockWindows: windows,
			Relationships: relsByContext[bc.ID],
		})
	}
	if len(contexts) > 0 {
		view.AverageComplexity = complexitySum / float64(len(contexts))
	}
	return view, nil
}
