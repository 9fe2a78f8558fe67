package entities

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// PatientEventType represents the type of patient event
type PatientEventType string

const (
	PatientEventTypeSnapshot        PatientEventType = "snapshot"
	PatientEventTypePatientUpdated  PatientEventType = "patient_updated"
	PatientEventTypePhaseChanged    PatientEventType = "phase_changed"
	PatientEventTypeAssessmentSaved PatientEventType = "assessment_saved"
)

// PatientEvent represents a real-time update published while a load cycle
// runs: phase transitions, full snapshots, and per-patient enrichment merges.
type PatientEvent struct {
	ID        string           `json:"id"`
	PatientID string           `json:"patient_id,omitempty"`
	EventType PatientEventType `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Patients  []*Patient       `json:"patients,omitempty"`
	Patient   *Patient         `json:"patient,omitempty"`
	Loading   *LoadingState    `json:"loading,omitempty"`
}

// NewPatientEvent creates a new patient event
func NewPatientEvent(eventType PatientEventType) *PatientEvent {
	return &PatientEvent{
		ID:        generateEventID(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// generateEventID generates a unique event ID
func generateEventID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

// randomString generates a random string of specified length
func randomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based if crypto/rand fails
		return time.Now().Format("150405.000")
	}
	return hex.EncodeToString(bytes)[:length]
}
