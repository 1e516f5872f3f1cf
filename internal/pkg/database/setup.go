package database

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the shared connection, set by SetupDatabase.
var DB *gorm.DB

// GetDB returns the shared connection or nil before SetupDatabase ran.
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL data source name from DB_* variables.
// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
func DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// Models lists every table owned by the service.
func Models() []any {
	return []any{
		&models.GatewayConfiguration{},
		&models.WebhookEvent{},
		&models.GatewayTransaction{},
		&models.Invoice{},
		&models.Payment{},
		&models.OperationalAlert{},
		&models.AccountPayable{},
		&models.BankStatementLine{},
		&models.ExportJob{},
		&models.OperatorAPIKey{},
	}
}

// SetupDatabase connects with retries and migrates the schema. With
// DB_AUTO_MIGRATE=false the versioned migrations in migrations/ are expected
// to have been applied by cmd/migrate.
func SetupDatabase() {
	var err error
	logLevel := logger.Warn
	if env.IsDev() {
		logLevel = logger.Info
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			// Unique violations surface as gorm.ErrDuplicatedKey.
			TranslateError: true,
			Logger:         logger.Default.LogMode(logLevel),
		})
		if err == nil {
			if env.GetEnv("DB_AUTO_MIGRATE", "true") == "true" {
				if err = DB.AutoMigrate(Models()...); err != nil {
					log.Errorf("[Database] AutoMigrate failed: %v", err)
					panic(err)
				}
			}
			log.Info("[Database] Connected")
			return
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}
