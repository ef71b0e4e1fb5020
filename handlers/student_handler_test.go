package handlers

import (
	"testing"

	"github.com/ViniciusThi/GuiVans/models"
)

func TestHasFreeSeatBoundary(t *testing.T) {
	v := &models.Vehicle{ID: 1, Plate: "VAN-0001", Capacity: 15}

	// The capacity-th student still fits.
	if !hasFreeSeat(v, 14) {
		t.Fatalf("vehicle with 14/15 seats taken must accept one more")
	}
	// The first past capacity is the conflict.
	if hasFreeSeat(v, 15) {
		t.Fatalf("full vehicle must reject another student")
	}
	if hasFreeSeat(v, 16) {
		t.Fatalf("over-seated vehicle must reject another student")
	}
}

func TestHasFreeSeatMinimalCapacity(t *testing.T) {
	v := &models.Vehicle{ID: 2, Plate: "VAN-0002", Capacity: 1}
	if !hasFreeSeat(v, 0) {
		t.Fatalf("empty single-seat vehicle must accept a student")
	}
	if hasFreeSeat(v, 1) {
		t.Fatalf("occupied single-seat vehicle must reject a second student")
	}
}
