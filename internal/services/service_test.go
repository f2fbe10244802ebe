package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/chunking"
	"github.com/yungbote/contextdesk-backend/internal/db"
	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/platform/knowledgestore"
	"github.com/yungbote/contextdesk-backend/internal/repos"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

// newTestDB opens a per-test in-memory database and migrates the full
// schema. The shared-cache DSN keeps every pooled connection on the
// same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(db.AllModels()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gdb
}

type testEnv struct {
	db          *gorm.DB
	log         *logger.Logger
	userRepo    repos.UserRepo
	profileRepo repos.ProfileRepo
	stateRepo   repos.ProfileKnowledgeStateRepo
	recordRepo  repos.ContextRecordRepo
	messageRepo repos.ContextMessageRepo
	contextRepo repos.BoundedContextRepo
	windowRepo  repos.UnlockWindowRepo
	sessionRepo repos.TeachingSessionRepo
	teachRepo   repos.TeachingRepo
	relRepo     repos.ContextRelationshipRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	log := newTestLogger(t)
	return &testEnv{
		db:          gdb,
		log:         log,
		userRepo:    repos.NewUserRepo(gdb, log),
		profileRepo: repos.NewProfileRepo(gdb, log),
		stateRepo:   repos.NewProfileKnowledgeStateRepo(gdb, log),
		recordRepo:  repos.NewContextRecordRepo(gdb, log),
		messageRepo: repos.NewContextMessageRepo(gdb, log),
		contextRepo: repos.NewBoundedContextRepo(gdb, log),
		windowRepo:  repos.NewUnlockWindowRepo(gdb, log),
		sessionRepo: repos.NewTeachingSessionRepo(gdb, log),
		teachRepo:   repos.NewTeachingRepo(gdb, log),
		relRepo:     repos.NewContextRelationshipRepo(gdb, log),
	}
}

func (e *testEnv) profileService() ProfileService {
	return NewProfileService(e.db, e.log, e.userRepo, e.profileRepo, e.stateRepo, e.recordRepo, e.messageRepo, nil, 10*time.Second)
}

func (e *testEnv) contextDataService() ContextDataService {
	return NewContextDataService(e.db, e.log, e.recordRepo, e.messageRepo, 10*time.Second)
}

func (e *testEnv) boundedContextService() *boundedContextService {
	svc := NewBoundedContextService(e.db, e.log, e.contextRepo, e.windowRepo, e.sessionRepo, e.teachRepo, e.relRepo, nil, nil, nil, 10*time.Second)
	return svc.(*boundedContextService)
}

func (e *testEnv) boundedContextServiceWithMirror(t *testing.T, store knowledgestore.DocumentStore, maxChunkBytes int) *boundedContextService {
	t.Helper()
	codec, err := chunking.NewCodec(chunking.Config{MaxDocumentBytes: maxChunkBytes, MaxMetadataValueBytes: 64})
	if err != nil {
		t.Fatalf("chunking.NewCodec: %v", err)
	}
	svc := NewBoundedContextService(e.db, e.log, e.contextRepo, e.windowRepo, e.sessionRepo, e.teachRepo, e.relRepo, nil, codec, store, 10*time.Second)
	return svc.(*boundedContextService)
}

func (e *testEnv) networkService() NetworkService {
	return NewNetworkService(e.db, e.log, e.contextRepo, e.windowRepo, e.sessionRepo, e.relRepo, 10*time.Second)
}

func (e *testEnv) createUser(t *testing.T) *types.User {
	t.Helper()
	now := time.Now().UTC()
	user := &types.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s@example.test", uuid.NewString()[:8]),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := e.userRepo.Create(context.Background(), nil, []*types.User{user}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
