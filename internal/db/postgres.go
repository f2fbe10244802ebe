package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/types"
	"github.com/yungbote/contextdesk-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "contextdesk", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

type fkConstraint struct {
	name  string
	table string
	stmt  string
}

var fkConstraints = []fkConstraint{
	{
		name:  "fk_profile_user_id",
		table: "profile",
		stmt: `ALTER TABLE "profile"
		ADD CONSTRAINT "fk_profile_user_id"
		FOREIGN KEY ("user_id") REFERENCES "user"("id")
		ON DELETE CASCADE`,
	},
	{
		name:  "fk_profile_knowledge_state_profile_id",
		table: "profile_knowledge_state",
		stmt: `ALTER TABLE "profile_knowledge_state"
		ADD CONSTRAINT "fk_profile_knowledge_state_profile_id"
		FOREIGN KEY ("profile_id") REFERENCES "profile"("id")
		ON DELETE CASCADE`,
	},
	{
		name:  "fk_unlock_window_bounded_context_id",
		table: "unlock_window",
		stmt: `ALTER TABLE "unlock_window"
		ADD CONSTRAINT "fk_unlock_window_bounded_context_id"
		FOREIGN KEY ("bounded_context_id") REFERENCES "bounded_context"("id")
		ON DELETE CASCADE`,
	},
	{
		name:  "fk_teaching_session_bounded_context_id",
		table: "teaching_session",
		stmt: `ALTER TABLE "teaching_session"
		ADD CONSTRAINT "fk_teaching_session_bounded_context_id"
		FOREIGN KEY ("bounded_context_id") REFERENCES "bounded_context"("id")
		ON DELETE CASCADE`,
	},
	{
		name:  "fk_teaching_teaching_session_id",
		table: "teaching",
		stmt: `ALTER TABLE "teaching"
		ADD CONSTRAINT "fk_teaching_teaching_session_id"
		FOREIGN KEY ("teaching_session_id") REFERENCES "teaching_session"("id")
		ON DELETE CASCADE`,
	},
	{
		name:  "fk_context_relationship_bounded_context_id",
		table: "context_relationship",
		stmt: `ALTER TABLE "context_relationship"
		ADD CONSTRAINT "fk_context_relationship_bounded_context_id"
		FOREIGN KEY ("bounded_context_id") REFERENCES "bounded_context"("id")
		ON DELETE CASCADE`,
	},
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(AllModels()...); err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	for _, c := range fkConstraints {
		drop := fmt.Sprintf(`ALTER TABLE %q DROP CONSTRAINT IF EXISTS %q`, c.table, c.name)
		if err := s.db.Exec(drop).Error; err != nil {
			return fmt.Errorf("failed to reset %s: %w", c.name, err)
		}
		if err := s.db.Exec(c.stmt).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// AllModels lists every table in migration order. Shared with tests so
// the sqlite schema stays in sync with the postgres one.
func AllModels() []interface{} {
	return []interface{}{
		&types.User{},
		&types.Profile{},
		&types.ProfileKnowledgeState{},
		&types.ContextRecord{},
		&types.ContextMessage{},
		&types.BoundedContext{},
		&types.UnlockWindow{},
		&types.TeachingSession{},
		&types.Teaching{},
		&types.ContextRelationship{},
	}
}
