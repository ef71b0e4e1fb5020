// scripts/seed_demo.go
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ViniciusThi/GuiVans/config"
	"github.com/ViniciusThi/GuiVans/database"
	"github.com/ViniciusThi/GuiVans/models"
)

// Seeds one driver, one van with a bound reader and two tagged students so a
// fresh install has something to scan against.
func main() {
	cfg := config.Load()
	database.Connect(cfg)

	var existing models.Vehicle
	if err := database.DB.Where("plate = ?", "VAN-0001").First(&existing).Error; err == nil {
		fmt.Println("demo data already seeded, vehicle VAN-0001 exists")
		os.Exit(0)
	} else if err != gorm.ErrRecordNotFound {
		log.Fatalf("failed to query vehicles: %v", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("motorista123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		driver := models.Driver{
			Name:      "Carlos Oliveira",
			LicenseNo: "CNH-98765",
			Phone:     "+55 11 98888-0001",
			Email:     "carlos@guivans.com",
			Password:  string(hashed),
			Active:    true,
		}
		if err := tx.Create(&driver).Error; err != nil {
			return err
		}

		deviceID := "ESP32_VAN_001"
		vehicle := models.Vehicle{
			Plate:    "VAN-0001",
			Model:    "Mercedes-Benz Sprinter",
			Year:     2022,
			Capacity: 15,
			DriverID: &driver.ID,
			DeviceID: &deviceID,
			Route:    "Vila Mariana - Colégio Central",
			Active:   true,
		}
		if err := tx.Create(&vehicle).Error; err != nil {
			return err
		}
		if err := tx.Model(&driver).Update("vehicle_id", vehicle.ID).Error; err != nil {
			return err
		}

		students := []models.Student{
			{
				Name: "João Silva", EnrollmentNo: "2024001", TagID: "A1B2C3D4",
				GuardianName: "Maria Silva", GuardianPhone: "+55 11 97777-0001",
				Address: "Rua das Flores 123", VehicleID: vehicle.ID,
				Shift: models.ShiftMorning, Active: true,
			},
			{
				Name: "Ana Souza", EnrollmentNo: "2024002", TagID: "E5F6A7B8",
				GuardianName: "Pedro Souza", GuardianPhone: "+55 11 97777-0002",
				Address: "Av. Paulista 456", VehicleID: vehicle.ID,
				Shift: models.ShiftMorning, Active: true,
			},
		}
		return tx.Create(&students).Error
	})
	if err != nil {
		log.Fatalf("failed to seed demo data: %v", err)
	}

	fmt.Println("demo data seeded:")
	fmt.Println("   driver   carlos@guivans.com / motorista123")
	fmt.Println("   vehicle  VAN-0001 (ESP32_VAN_001)")
	fmt.Println("   students João Silva (A1B2C3D4), Ana Souza (E5F6A7B8)")
}
