package service

import (
	"context"
	"strings"

	"clinicq/internal/domain"
	"clinicq/internal/models"
)

const (
	VitalsLow    = "low"
	VitalsNormal = "normal"
	VitalsHigh   = "high"
)

type VitalsService struct {
	repo domain.VitalsRepository
}

func NewVitalsService(repo domain.VitalsRepository) *VitalsService {
	return &VitalsService{repo: repo}
}

func classifyHeartRate(bpm int) string {
	switch {
	case bpm < 60:
		return VitalsLow
	case bpm > 100:
		return VitalsHigh
	default:
		return VitalsNormal
	}
}

// Record validates and stores a vitals reading. An empty status is derived
// from the heart rate.
func (s *VitalsService) Record(ctx context.Context, log *models.VitalsLog) error {
	errs := fieldErrors{}
	log.UserName = strings.TrimSpace(log.UserName)
	if log.UserName == "" {
		errs.add("user_name", "user name is required")
	}
	if log.HeartRate < 20 || log.HeartRate > 250 {
		errs.add("heart_rate", "heart rate must be between 20 and 250 bpm")
	}
	if err := errs.err(); err != nil {
		return err
	}

	if log.Status == "" {
		log.Status = classifyHeartRate(log.HeartRate)
	}
	return s.repo.CreateVitalsLog(ctx, log)
}

func (s *VitalsService) List(ctx context.Context, limit int) ([]*models.VitalsLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListVitalsLogs(ctx, limit)
}
