package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/clinsight/clinical-dashboard/internal/adapters/database"
	"github.com/clinsight/clinical-dashboard/internal/adapters/search"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/typesense"
	"github.com/clinsight/clinical-dashboard/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	var searchRepo *search.TypesenseAdapter
	if err == nil {
		searchRepo = search.NewTypesenseAdapter(tsClient)
		searchRepo.InitSchema(context.Background())
	}

	patientRepo := database.NewPatientAdapter(pgClient)
	conditionRepo := database.NewConditionAdapter(pgClient)
	vitalsRepo := database.NewVitalsAdapter(pgClient)
	alertRepo := database.NewAlertAdapter(pgClient)
	assessmentRepo := database.NewRiskAssessmentAdapter(pgClient)

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				clinical_alerts,
				risk_assessments,
				patient_vitals,
				patient_conditions,
				patients
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
	}

	existing, err := patientRepo.ListIdentities(ctx)
	if err != nil {
		log.Fatalf("Failed to check existing patients: %v", err)
	}
	if len(existing) > 0 {
		log.Printf("Found %d existing patients, skipping seed", len(existing))
		return
	}

	now := time.Now()

	// 1. Seed Patients
	patients := []entities.Patient{
		{ID: uuid.New().String(), MRN: "MRN001234", Name: "Sarah Johnson", Age: 67, DateOfBirth: "1956-05-15", Gender: "female", Phone: "+1-555-0123", Email: "sarah.johnson@email.com", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New().String(), MRN: "MRN001235", Name: "Michael Chen", Age: 45, DateOfBirth: "1978-11-22", Gender: "male", Phone: "+1-555-0124", Email: "michael.chen@email.com", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New().String(), MRN: "MRN001236", Name: "Emily Rodriguez", Age: 32, DateOfBirth: "1991-03-08", Gender: "female", Phone: "+1-555-0125", Email: "emily.rodriguez@email.com", CreatedAt: now, UpdatedAt: now},
	}

	for i := range patients {
		if err := patientRepo.Upsert(ctx, &patients[i]); err != nil {
			log.Fatalf("Failed to create patient %s: %v", patients[i].Name, err)
		}
	}

	sarah, michael, emily := patients[0].ID, patients[1].ID, patients[2].ID

	// 2. Seed Conditions
	conditions := []entities.Condition{
		{PatientID: sarah, Name: "Diabetes Type 2", ICDCode: "E11", Status: "active", Severity: "moderate"},
		{PatientID: sarah, Name: "Hypertension", ICDCode: "I10", Status: "active", Severity: "moderate"},
		{PatientID: sarah, Name: "Coronary Artery Disease", ICDCode: "I25", Status: "active", Severity: "severe"},
		{PatientID: michael, Name: "Obesity", ICDCode: "E66", Status: "active", Severity: "moderate"},
		{PatientID: michael, Name: "Pre-diabetes", ICDCode: "R73", Status: "active", Severity: "mild"},
		{PatientID: emily, Name: "Asthma", ICDCode: "J45", Status: "active", Severity: "mild"},
	}

	for i := range conditions {
		conditions[i].ID = uuid.New().String()
		conditions[i].CreatedAt = now
		if err := conditionRepo.Upsert(ctx, &conditions[i]); err != nil {
			log.Printf("Failed to create condition %s: %v", conditions[i].Name, err)
		}
	}

	// 3. Seed Vitals
	vitals := []entities.VitalSigns{
		{PatientID: sarah, SystolicBP: intp(165), DiastolicBP: intp(95), HeartRate: intp(92), Temperature: floatp(98.6), OxygenSat: intp(96), RecordedBy: "Dr. Smith"},
		{PatientID: michael, SystolicBP: intp(140), DiastolicBP: intp(85), HeartRate: intp(78), Temperature: floatp(98.4), OxygenSat: intp(98), RecordedBy: "Nurse Johnson"},
		{PatientID: emily, SystolicBP: intp(125), DiastolicBP: intp(80), HeartRate: intp(72), Temperature: floatp(98.2), OxygenSat: intp(99), RecordedBy: "Dr. Wilson"},
	}

	for i := range vitals {
		vitals[i].ID = uuid.New().String()
		vitals[i].RecordedAt = now
		if err := vitalsRepo.Create(ctx, &vitals[i]); err != nil {
			log.Printf("Failed to create vitals for %s: %v", vitals[i].PatientID, err)
		}
	}

	// 4. Seed Risk Assessments
	assessments := []entities.RiskAssessment{
		{
			PatientID: sarah,
			Score:     85,
			Level:     entities.RiskLevelCritical,
			RiskFactors: []entities.RiskFactor{
				{Name: "Cardiovascular Risk", Score: 85, Trend: "up"},
				{Name: "Diabetes Progression", Score: 72, Trend: "stable"},
			},
			Recommendations: []string{
				"Immediate cardiology consultation recommended",
				"Adjust BP medication dosage",
				"Schedule diabetes educator appointment",
			},
		},
		{
			PatientID: michael,
			Score:     65,
			Level:     entities.RiskLevelHigh,
			RiskFactors: []entities.RiskFactor{
				{Name: "Metabolic Risk", Score: 65, Trend: "up"},
				{Name: "Lifestyle Factors", Score: 58, Trend: "stable"},
			},
			Recommendations: []string{
				"Weight management program enrollment",
				"Nutritionist consultation",
				"Exercise plan development",
			},
		},
		{
			PatientID: emily,
			Score:     35,
			Level:     entities.RiskLevelMedium,
			RiskFactors: []entities.RiskFactor{
				{Name: "Respiratory Risk", Score: 35, Trend: "stable"},
			},
			Recommendations: []string{
				"Continue current asthma management",
				"Monitor seasonal triggers",
			},
		},
	}

	for i := range assessments {
		assessments[i].ID = uuid.New().String()
		assessments[i].AssessedAt = now
		assessments[i].ExpiresAt = now.Add(24 * time.Hour)
		if err := assessmentRepo.Upsert(ctx, &assessments[i]); err != nil {
			log.Printf("Failed to create assessment for %s: %v", assessments[i].PatientID, err)
		}
	}

	// 5. Seed Clinical Alerts
	alerts := []entities.ClinicalAlert{
		{PatientID: sarah, AlertType: "critical", Title: "BP Crisis Risk", Description: "Blood pressure readings indicate potential hypertensive crisis", RecommendedAction: "Schedule immediate follow-up", IsActive: true},
		{PatientID: sarah, AlertType: "warning", Title: "Medication Gap", Description: "Patient missed last 2 metformin doses", RecommendedAction: "Contact patient for adherence check", IsActive: true},
		{PatientID: sarah, AlertType: "info", Title: "Lab Results Ready", Description: "HbA1c and lipid panel results available for review", RecommendedAction: "Review and discuss with patient", IsActive: true},
		{PatientID: michael, AlertType: "warning", Title: "Weight Trend", Description: "BMI has increased 5% over last 6 months", RecommendedAction: "Discuss weight management strategies", IsActive: true},
	}

	for i := range alerts {
		alerts[i].ID = uuid.New().String()
		alerts[i].CreatedAt = now
		if err := alertRepo.Create(ctx, &alerts[i]); err != nil {
			log.Printf("Failed to create alert %s: %v", alerts[i].Title, err)
		}
	}

	// 6. Index into Typesense
	if searchRepo != nil {
		conditionsByPatient := map[string][]string{}
		for _, c := range conditions {
			conditionsByPatient[c.PatientID] = append(conditionsByPatient[c.PatientID], c.Name)
		}
		for i := range patients {
			p := patients[i]
			p.Conditions = conditionsByPatient[p.ID]
			p.RiskScore = assessments[i].Score
			p.RiskLevel = assessments[i].Level
			if err := searchRepo.Index(ctx, &p); err != nil {
				log.Printf("Failed to index patient %s: %v", p.Name, err)
			}
		}
	}

	log.Printf("Seeded %d patients with conditions, vitals, assessments and alerts", len(patients))
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }
