package database

import (
	"fmt"

	"adpilot/internal/config"
	"adpilot/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to the configured driver without migrating.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch cfg.DBDriver {
	case "postgres":
		return gorm.Open(postgres.Open(PostgresDSN(cfg)), gormCfg)
	case "sqlite", "":
		return gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

// InitGorm opens the database and runs the auto-migration.
func InitGorm(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	log.Info("database connected", zap.String("driver", cfg.DBDriver))

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migration: %w", err)
	}
	log.Info("database migration completed")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.BusinessConnection{},
		&models.BusinessAsset{},
		&models.IntakeSession{},
		&models.CampaignRun{},
		&models.SystemSetting{},
	)
}

// SyncConfig lets values stored in system_settings override the environment,
// and seeds the table from the environment on first boot.
func SyncConfig(db *gorm.DB, cfg *config.Config, log *zap.Logger) {
	settings := []struct {
		Key   string
		Value *string
	}{
		{"META_SYSTEM_TOKEN", &cfg.MetaSystemToken},
		{"VERIFY_TOKEN", &cfg.VerifyToken},
		{"WHATSAPP_TOKEN", &cfg.WhatsAppToken},
		{"PHONE_NUMBER_ID", &cfg.PhoneNumberID},
		{"GEMINI_API_KEY", &cfg.GeminiAPIKey},
		{"IMAGE_API_KEY", &cfg.ImageAPIKey},
	}

	for _, s := range settings {
		var setting models.SystemSetting
		if err := db.Where("key = ?", s.Key).First(&setting).Error; err == nil {
			if setting.Value != "" {
				*s.Value = setting.Value
			}
			continue
		}
		if *s.Value == "" {
			continue
		}
		err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.SystemSetting{Key: s.Key, Value: *s.Value}).Error
		if err != nil {
			log.Warn("seed system setting failed", zap.String("key", s.Key), zap.Error(err))
		}
	}
	log.Info("system settings synchronized from database")
}
