package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/adapters/database"
	"github.com/clinsight/clinical-dashboard/internal/adapters/search"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/typesense"
	"github.com/clinsight/clinical-dashboard/pkg/config"
)

func main() {
	var reset bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete existing Typesense collection before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	var err error
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatalf("Invalid interval %q: %v", intervalValue, err)
		}
		if interval <= 0 {
			log.Fatalf("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, reset); err != nil {
			log.Printf("Reindex failed: %v", err)
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Printf("Reindex complete. Next run in %s.", interval)

		select {
		case <-ctx.Done():
			log.Println("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, reset bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	patientRepo := database.NewPatientAdapter(pgClient)
	conditionRepo := database.NewConditionAdapter(pgClient)
	alertRepo := database.NewAlertAdapter(pgClient)
	assessmentRepo := database.NewRiskAssessmentAdapter(pgClient)

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}

	if reset || os.Getenv("RESET_TYPESENSE") == "true" {
		log.Println("RESET_TYPESENSE=true detected, deleting patients collection")
		_, err := tsClient.Client().Collection(typesense.PatientsCollection).Delete(ctx)
		if err != nil {
			log.Printf("Warning: failed to delete collection: %v", err)
		}
	}

	searchRepo := search.NewTypesenseAdapter(tsClient)
	if err := searchRepo.InitSchema(ctx); err != nil {
		return err
	}

	patients, err := patientRepo.List(ctx, repositories.PatientFilter{Limit: 1000})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(patients))
	for _, p := range patients {
		if p != nil {
			ids = append(ids, p.ID)
		}
	}

	conditionsByPatient := map[string][]string{}
	conditions, err := conditionRepo.ListByPatientIDs(ctx, ids)
	if err != nil {
		log.Printf("Warning: failed to list conditions: %v", err)
	} else {
		for _, c := range conditions {
			if c == nil {
				continue
			}
			conditionsByPatient[c.PatientID] = append(conditionsByPatient[c.PatientID], c.Name)
		}
	}

	alertsByPatient := map[string]int{}
	alerts, err := alertRepo.ListActiveByPatientIDs(ctx, ids)
	if err != nil {
		log.Printf("Warning: failed to list alerts: %v", err)
	} else {
		for _, a := range alerts {
			if a == nil {
				continue
			}
			alertsByPatient[a.PatientID]++
		}
	}

	assessmentsByPatient := map[string][]*entities.RiskAssessment{}
	assessments, err := assessmentRepo.ListByPatientIDs(ctx, ids)
	if err != nil {
		log.Printf("Warning: failed to list assessments: %v", err)
	} else {
		for _, a := range assessments {
			if a == nil {
				continue
			}
			assessmentsByPatient[a.PatientID] = append(assessmentsByPatient[a.PatientID], a)
		}
	}

	log.Printf("Indexing %d patients...", len(patients))

	indexed := 0
	for _, p := range patients {
		if p == nil {
			continue
		}

		p.Conditions = conditionsByPatient[p.ID]
		p.Alerts = alertsByPatient[p.ID]
		p.RiskAssessments = assessmentsByPatient[p.ID]
		if current := p.CurrentAssessment(); current != nil {
			p.RiskScore = current.Score
			p.RiskLevel = current.Level
			if p.RiskLevel == "" {
				p.RiskLevel = entities.RiskLevelForScore(current.Score)
			}
		} else {
			p.RiskLevel = entities.RiskLevelLow
		}

		if err := searchRepo.Index(ctx, p); err != nil {
			log.Printf("Warning: failed to index patient %s: %v", p.ID, err)
			continue
		}
		indexed++
	}

	log.Printf("Indexed %d of %d patients", indexed, len(patients))
	return nil
}
