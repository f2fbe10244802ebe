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
	"github.com/yungbote/contextdesk-backend/internal/clients/redis"
	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/repos"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

// DefaultProfileName labels the synthetic default-namespace entry in
// profile listings. It is not a stored profile.
const DefaultProfileName = "Default Context"

// ProfileView is a listing row. The default namespace appears as a
// synthetic entry with a nil ID.
type ProfileView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsDefault   bool      `json:"is_default"`
}

// SwitchResult reports what a profile switch moved. Flushed counts rows
// moved out of the default namespace into the previously active
// profile's namespace; Loaded counts rows moved from the target
// profile's namespace into the default namespace.
type SwitchResult struct {
	ActiveProfileID *uuid.UUID `json:"active_profile_id"`
	Flushed         int64      `json:"flushed"`
	Loaded          int64      `json:"loaded"`
	NoOp            bool       `json:"no_op"`
}

type ProfileService interface {
	Create(ctx context.Context, userID uuid.UUID, name, description string) (*types.Profile, error)
	List(ctx context.Context, userID uuid.UUID) ([]ProfileView, error)
	// Switch activates the profile with the given ID, migrating scoped
	// data so the default namespace always reflects the active profile.
	// A nil target ID switches back to the default namespace.
	Switch(ctx context.Context, userID, targetID uuid.UUID) (*SwitchResult, error)
	Delete(ctx context.Context, userID, profileID uuid.UUID) error
	GetKnowledgeState(ctx context.Context, profileID uuid.UUID) (*types.ProfileKnowledgeState, error)
	UpdateKnowledgeState(ctx context.Context, profileID uuid.UUID, patch json.RawMessage) (*types.ProfileKnowledgeState, error)
}

type profileService struct {
	db          *gorm.DB
	log         *logger.Logger
	userRepo    repos.UserRepo
	profileRepo repos.ProfileRepo
	stateRepo   repos.ProfileKnowledgeStateRepo
	recordRepo  repos.ContextRecordRepo
	messageRepo repos.ContextMessageRepo
	auditBus    redis.AuditBus
	opTimeout   time.Duration

	mu          sync.Mutex
	switchLocks map[uuid.UUID]*sync.Mutex
}

func NewProfileService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	profileRepo repos.ProfileRepo,
	stateRepo repos.ProfileKnowledgeStateRepo,
	recordRepo repos.ContextRecordRepo,
	messageRepo repos.ContextMessageRepo,
	auditBus redis.AuditBus,
	opTimeout time.Duration,
) ProfileService {
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &profileService{
		db:          db,
		log:         baseLog.With("service", "ProfileService"),
		userRepo:    userRepo,
		profileRepo: profileRepo,
		stateRepo:   stateRepo,
		recordRepo:  recordRepo,
		messageRepo: messageRepo,
		auditBus:    auditBus,
		opTimeout:   opTimeout,
		switchLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *profileService) Create(ctx context.Context, userID uuid.UUID, name, description string) (*types.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name required")
	}
	if strings.EqualFold(name, DefaultProfileName) {
		return nil, fmt.Errorf("profile name %q is reserved: %w", name, apperr.ErrDuplicateName)
	}

	var out *types.Profile
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
		}
		exists, err := s.profileRepo.NameExists(ctx, tx, userID, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("profile name %q: %w", name, apperr.ErrDuplicateName)
		}
		now := time.Now().UTC()
		profile := &types.Profile{
			ID:          uuid.New(),
			UserID:      userID,
			Name:        name,
			Description: strings.TrimSpace(description),
			IsActive:    false,
			IsLocked:    false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := s.profileRepo.Create(ctx, tx, []*types.Profile{profile})
		if err != nil {
			return err
		}
		state := &types.ProfileKnowledgeState{
			ID:          uuid.New(),
			ProfileID:   profile.ID,
			Payload:     datatypes.JSON([]byte(`{}`)),
			Version:     1,
			LastUpdated: now,
		}
		if _, err := s.stateRepo.Create(ctx, tx, []*types.ProfileKnowledgeState{state}); err != nil {
			return err
		}
		out = created[0]
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	s.log.Info("profile created", "user_id", userID, "profile_id", out.ID, "name", out.Name)
	return out, nil
}

func (s *profileService) List(ctx context.Context, userID uuid.UUID) ([]ProfileView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	profiles, err := s.profileRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	views := make([]ProfileView, 0, len(profiles)+1)
	views = append(views, ProfileView{
		ID:        DefaultNamespaceID,
		Name:      DefaultProfileName,
		IsActive:  user.ActiveProfileID == nil,
		IsDefault: true,
	})
	for _, p := range profiles {
		views = append(views, ProfileView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			IsActive:    p.IsActive,
		})
	}
	return views, nil
}

// lockUser serializes switches per user within this process. Cross
// process races are caught by the optimistic active-pointer update.
func (s *profileService) lockUser(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.switchLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.switchLocks[userID] = lock
	}
	return lock
}

func (s *profileService) Switch(ctx context.Context, userID, targetID uuid.UUID) (*SwitchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	result := &SwitchResult{}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
		}
		current := user.ActiveProfileID

		if targetID == DefaultNamespaceID {
			if current == nil {
				result.NoOp = true
				return nil
			}
		} else {
			if current != nil && *current == targetID {
				result.ActiveProfileID = current
				result.NoOp = true
				return nil
			}
			target, err := s.profileRepo.GetByID(ctx, tx, targetID)
			if err != nil {
				return err
			}
			if target == nil || target.UserID != userID {
				return fmt.Errorf("profile %s: %w", targetID, apperr.ErrNotFound)
			}
		}

		// Flush: the default namespace holds the previously active
		// profile's working set. Move it home before loading the next.
		if current != nil {
			moved, err := s.recordRepo.MoveNamespace(ctx, tx, userID, DefaultNamespaceID, *current)
			if err != nil {
				return err
			}
			result.Flushed += moved
			moved, err = s.messageRepo.MoveNamespace(ctx, tx, userID, DefaultNamespaceID, *current)
			if err != nil {
				return err
			}
			result.Flushed += moved
			if err := s.profileRepo.SetActive(ctx, tx, *current, false); err != nil {
				return err
			}
		}

		var targetPtr *uuid.UUID
		if targetID != DefaultNamespaceID {
			moved, err := s.recordRepo.MoveNamespace(ctx, tx, userID, targetID, DefaultNamespaceID)
			if err != nil {
				return err
			}
			result.Loaded += moved
			moved, err = s.messageRepo.MoveNamespace(ctx, tx, userID, targetID, DefaultNamespaceID)
			if err != nil {
				return err
			}
			result.Loaded += moved
			if err := s.profileRepo.SetActive(ctx, tx, targetID, true); err != nil {
				return err
			}
			t := targetID
			targetPtr = &t
		}

		n, err := s.userRepo.SetActiveProfile(ctx, tx, userID, current, targetPtr)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("active profile changed underneath switch for user %s: %w", userID, apperr.ErrConcurrentSwitch)
		}
		result.ActiveProfileID = targetPtr
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}

	if !result.NoOp && s.auditBus != nil {
		s.auditBus.Publish(ctx, redis.AuditEvent{
			Subject:    "profile",
			SubjectID:  targetID.String(),
			Transition: "switch",
			Reason:     fmt.Sprintf("flushed=%d loaded=%d", result.Flushed, result.Loaded),
			At:         time.Now().UTC(),
		})
	}
	if !result.NoOp {
		s.log.Info("profile switched", "user_id", userID, "target_id", targetID, "flushed", result.Flushed, "loaded", result.Loaded)
	}
	return result, nil
}

func (s *profileService) Delete(ctx context.Context, userID, profileID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	return apperr.WrapStorage(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.profileRepo.GetByID(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if profile == nil || profile.UserID != userID {
			return fmt.Errorf("profile %s: %w", profileID, apperr.ErrNotFound)
		}
		if profile.IsActive {
			return fmt.Errorf("profile %s is active: %w", profileID, apperr.ErrCannotDeleteActive)
		}
		if err := s.stateRepo.DeleteByProfileID(ctx, tx, profileID); err != nil {
			return err
		}
		if _, err := s.recordRepo.DeleteByScope(ctx, tx, userID, profileID); err != nil {
			return err
		}
		if _, err := s.messageRepo.DeleteByScope(ctx, tx, userID, profileID); err != nil {
			return err
		}
		return s.profileRepo.Delete(ctx, tx, profileID)
	}))
}

func (s *profileService) GetKnowledgeState(ctx context.Context, profileID uuid.UUID) (*types.ProfileKnowledgeState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	state, err := s.stateRepo.GetByProfileID(ctx, nil, profileID)
	if err != nil {
		return nil, apperr.WrapStorage(err)
	}
	if state == nil {
		return nil, fmt.Errorf("knowledge state for profile %s: %w", profileID, apperr.ErrNotFound)
	}
	return state, nil
}

func (s *profileService) UpdateKnowledgeState(ctx context.Context, profileID uuid.UUID, patch json.RawMessage) (*types.ProfileKnowledgeState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var out *types.ProfileKnowledgeState
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.stateRepo.GetByProfileID(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("knowledge state for profile %s: %w", profileID, apperr.ErrNotFound)
		}
		merged, err := mergeJSONObjects(json.RawMessage(state.Payload), patch)
		if err != nil {
			return fmt.Errorf("merge knowledge payload: %w", err)
		}
		if err := s.stateRepo.UpdatePayload(ctx, tx, profileID, datatypes.JSON(merged)); err != nil {
			return err
		}
		state, err = s.stateRepo.GetByProfileID(ctx, tx, profileID)
		if err != nil {
			return err
		}
		out = state
		return nil
	}); err != nil {
		return nil, apperr.WrapStorage(err)
	}
	return out, nil
}
