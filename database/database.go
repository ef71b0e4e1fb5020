package database

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ViniciusThi/GuiVans/config"
	"github.com/ViniciusThi/GuiVans/models"
)

var DB *gorm.DB

func Connect(cfg *config.Config) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	DB = db

	if err := DB.AutoMigrate(
		&models.Driver{},
		&models.Vehicle{},
		&models.Student{},
		&models.AccessEvent{},
	); err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}
}
