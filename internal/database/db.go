package database

import (
	"log"

	"paneltrack-backend/internal/config"
	"paneltrack-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// Panel/Crate is_active migration: the column was introduced after the
	// first deployments, older rows carry NULL and must be treated as active
	// (this runs BEFORE AutoMigrate so the NOT NULL constraint can apply).
	for _, table := range []string{"panels", "crates"} {
		if DB.Migrator().HasTable(table) && DB.Migrator().HasColumn(table, "is_active") {
			var nullCount int64
			DB.Raw("SELECT COUNT(*) FROM " + table + " WHERE is_active IS NULL").Scan(&nullCount)
			if nullCount > 0 {
				log.Printf("Backfilling %d NULL is_active rows in %s", nullCount, table)
				DB.Exec("UPDATE " + table + " SET is_active = TRUE WHERE is_active IS NULL")
			}
		}
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Panel{},
		&models.Crate{},
		&models.Batch{},
		&models.Route{},
		&models.Delivery{},
		&models.ArchivedDelivery{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("Database connected, migrations complete.")
}
