// Command migrate_data copies a local SQLite database into PostgreSQL and
// resyncs the serial sequences afterwards. Rows already present in the
// destination are skipped, so the command can be re-run.
package main

import (
	"log"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"adpilot/internal/config"
	"adpilot/internal/database"
	"adpilot/internal/logging"
	"adpilot/internal/models"
)

const batchSize = 200

func main() {
	cfg := config.LoadConfig()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 1. Connect to SQLite (Source)
	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logger.Fatal("connect sqlite", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	logger.Info("connected to sqlite", zap.String("path", cfg.DBPath))

	// 2. Connect to PostgreSQL (Destination)
	cfg.DBDriver = "postgres"
	pgDB, err := database.InitGorm(cfg, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}

	migrateTable := func(tableName string, rows any) {
		if err := sqliteDB.Find(rows).Error; err != nil {
			logger.Error("read source table", zap.String("table", tableName), zap.Error(err))
			return
		}
		err := pgDB.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, batchSize).Error
		})
		if err != nil {
			logger.Error("write destination table", zap.String("table", tableName), zap.Error(err))
			return
		}
		logger.Info("table migrated", zap.String("table", tableName))
	}

	// Parents before children.
	var connections []models.BusinessConnection
	migrateTable("business_connections", &connections)

	var assets []models.BusinessAsset
	migrateTable("business_assets", &assets)

	var sessions []models.IntakeSession
	migrateTable("intake_sessions", &sessions)

	var campaignRuns []models.CampaignRun
	migrateTable("campaign_runs", &campaignRuns)

	var settings []models.SystemSetting
	migrateTable("system_settings", &settings)

	syncSequences(pgDB, logger, "business_connections", "business_assets", "intake_sessions", "campaign_runs")

	logger.Info("migration completed")
}

// syncSequences moves each serial sequence past the highest copied id, since
// rows inserted with explicit ids do not advance it.
func syncSequences(db *gorm.DB, logger *zap.Logger, tables ...string) {
	for _, table := range tables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			logger.Error("sync sequence", zap.String("table", table), zap.Error(err))
		} else {
			logger.Info("sequence synced", zap.String("table", table))
		}
	}
}
