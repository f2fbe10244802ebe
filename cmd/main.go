package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/contextdesk-backend/internal/chunking"
	"github.com/yungbote/contextdesk-backend/internal/clients/redis"
	"github.com/yungbote/contextdesk-backend/internal/db"
	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/platform/knowledgestore"
	"github.com/yungbote/contextdesk-backend/internal/repos"
	"github.com/yungbote/contextdesk-backend/internal/services"
	"github.com/yungbote/contextdesk-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	opTimeout := utils.GetEnvAsDuration("OPERATION_TIMEOUT", 30*time.Second, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	contextRepo := repos.NewBoundedContextRepo(thePG, log)
	windowRepo := repos.NewUnlockWindowRepo(thePG, log)
	sessionRepo := repos.NewTeachingSessionRepo(thePG, log)
	teachingRepo := repos.NewTeachingRepo(thePG, log)
	relationshipRepo := repos.NewContextRelationshipRepo(thePG, log)

	// Audit bus (optional)
	var auditBus redis.AuditBus
	if os.Getenv("REDIS_ADDR") != "" {
		auditBus, err = redis.NewAuditBus(log)
		if err != nil {
			log.Warn("Audit bus init failed, transitions will not be published", "error", err)
			auditBus = nil
		} else {
			defer auditBus.Close()
		}
	}

	// Knowledge store (optional)
	var docStore knowledgestore.DocumentStore
	var codec *chunking.Codec
	if os.Getenv("KNOWLEDGE_STORE_URL") != "" {
		ksCfg, err := knowledgestore.ResolveConfigFromEnv(log)
		if err != nil {
			log.Fatal("Knowledge store config invalid", "error", err)
		}
		codec, err = chunking.NewCodec(chunking.Config{
			MaxDocumentBytes:      ksCfg.MaxDocumentBytes,
			MaxMetadataValueBytes: ksCfg.MaxMetadataValueBytes,
		})
		if err != nil {
			log.Fatal("Chunking codec config invalid", "error", err)
		}
		docStore, err = knowledgestore.NewDocumentStore(log, ksCfg)
		if err != nil {
			log.Fatal("Knowledge store init failed", "error", err)
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	boundedContextService := services.NewBoundedContextService(thePG, log, contextRepo, windowRepo, sessionRepo, teachingRepo, relationshipRepo, auditBus, codec, docStore, opTimeout)
	networkService := services.NewNetworkService(thePG, log, contextRepo, windowRepo, sessionRepo, relationshipRepo, opTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Catch stored lock status up with any windows that lapsed while down.
	relocked, err := boundedContextService.ReconcileLocks(ctx)
	if err != nil {
		log.Warn("Lock reconciliation failed", "error", err)
	} else if len(relocked) > 0 {
		log.Info("Relocked contexts with lapsed windows", "count", len(relocked))
	}

	// Startup snapshot of the context network.
	view, err := networkService.Network(ctx)
	if err != nil {
		log.Warn("Network snapshot failed", "error", err)
	} else {
		log.Info("contextdesk backend ready",
			"contexts", view.TotalContexts,
			"locked", view.LockedContexts,
			"unlocked", view.UnlockedContexts,
			"total_cost", view.TotalCost,
			"avg_complexity", view.AverageComplexity,
		)
	}
}
