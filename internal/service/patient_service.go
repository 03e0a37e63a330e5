package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"clinicq/internal/domain"
	"clinicq/internal/models"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	phonePattern  = regexp.MustCompile(`^[6-9]\d{9}$`)
	aadharPattern = regexp.MustCompile(`^\d{12}$`)
	abhaPattern   = regexp.MustCompile(`^\d{14}$`)
)

var bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// SelectionStore keeps the signed-in account and its selected patient.
type SelectionStore interface {
	SaveAccount(ctx context.Context, account *models.Account) error
	SelectPatient(ctx context.Context, accountID, patientID int64) error
	SelectedPatient(ctx context.Context, accountID int64) (int64, bool, error)
}

type PatientInput struct {
	Name         string              `json:"name"`
	Age          int                 `json:"age"`
	IdentityID   string              `json:"identity_id"`
	IdentityType models.IdentityType `json:"identity_type"`
}

type PatientService struct {
	accounts domain.AccountRepository
	state    SelectionStore
	logger   *zerolog.Logger
}

func NewPatientService(accounts domain.AccountRepository, state SelectionStore, logger *zerolog.Logger) *PatientService {
	return &PatientService{accounts: accounts, state: state, logger: logger}
}

// normalizePhone strips spaces, dashes and a +91 prefix.
func normalizePhone(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	phone = strings.TrimPrefix(phone, "+91")
	return phone
}

// Login loads the account for a phone number, creating it on first use.
func (s *PatientService) Login(ctx context.Context, phone string) (*models.Account, error) {
	phone = normalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return nil, &ValidationError{Fields: map[string]string{"phone_number": "enter a valid 10-digit mobile number"}}
	}

	account, err := s.accounts.GetOrCreateAccount(ctx, phone)
	if err != nil {
		return nil, err
	}

	patients, err := s.accounts.ListPatients(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.Patients = lo.Map(patients, func(p *models.Patient, _ int) models.Patient { return *p })

	if err := s.state.SaveAccount(ctx, account); err != nil {
		s.logger.Warn().Err(err).Int64("account_id", account.ID).Msg("failed to cache account")
	}
	return account, nil
}

func validatePatient(in PatientInput) error {
	errs := fieldErrors{}

	if strings.TrimSpace(in.Name) == "" {
		errs.add("name", "name is required")
	}
	if in.Age <= 0 || in.Age > 120 {
		errs.add("age", "age must be between 1 and 120")
	}

	id := strings.ReplaceAll(in.IdentityID, " ", "")
	switch in.IdentityType {
	case models.IdentityAadhar:
		if !aadharPattern.MatchString(id) {
			errs.add("identity_id", "Aadhaar number must be 12 digits")
		}
	case models.IdentityABHA:
		if !abhaPattern.MatchString(id) {
			errs.add("identity_id", "ABHA number must be 14 digits")
		}
	default:
		errs.add("identity_type", "identity type must be aadhar or abha")
	}
	return errs.err()
}

// AddPatient registers a family member under an account.
func (s *PatientService) AddPatient(ctx context.Context, accountID int64, in PatientInput) (*models.Patient, error) {
	if err := validatePatient(in); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	patient := &models.Patient{
		AccountID:    accountID,
		Name:         strings.TrimSpace(in.Name),
		Age:          in.Age,
		IdentityID:   strings.ReplaceAll(in.IdentityID, " ", ""),
		IdentityType: in.IdentityType,
	}
	if err := s.accounts.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	s.logger.Info().Int64("account_id", accountID).Int64("patient_id", patient.ID).Msg("patient added")
	return patient, nil
}

func (s *PatientService) ListPatients(ctx context.Context, accountID int64) ([]*models.Patient, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.accounts.ListPatients(ctx, accountID)
}

// SelectPatient makes the patient the active one for their account.
func (s *PatientService) SelectPatient(ctx context.Context, patientID int64) (*models.Patient, error) {
	patient, err := s.accounts.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.state.SelectPatient(ctx, patient.AccountID, patient.ID); err != nil {
		return nil, fmt.Errorf("save selected patient: %w", err)
	}
	return patient, nil
}

// SelectedPatient returns the account's active patient, or nil.
func (s *PatientService) SelectedPatient(ctx context.Context, accountID int64) (*models.Patient, error) {
	id, ok, err := s.state.SelectedPatient(ctx, accountID)
	if err != nil || !ok {
		return nil, err
	}
	return s.accounts.GetPatient(ctx, id)
}

func (s *PatientService) SaveProfile(ctx context.Context, profile *models.MedicalProfile) error {
	errs := fieldErrors{}
	profile.BloodGroup = strings.ToUpper(strings.TrimSpace(profile.BloodGroup))
	if profile.BloodGroup != "" && !lo.Contains(bloodGroups, profile.BloodGroup) {
		errs.add("blood_group", "unknown blood group")
	}
	if contact := normalizePhone(profile.EmergencyContact); contact != "" {
		if !phonePattern.MatchString(contact) {
			errs.add("emergency_contact", "enter a valid 10-digit mobile number")
		}
		profile.EmergencyContact = contact
	}
	if err := errs.err(); err != nil {
		return err
	}

	if _, err := s.accounts.GetPatient(ctx, profile.PatientID); err != nil {
		return err
	}
	return s.accounts.UpsertMedicalProfile(ctx, profile)
}

func (s *PatientService) Profile(ctx context.Context, patientID int64) (*models.MedicalProfile, error) {
	return s.accounts.GetMedicalProfile(ctx, patientID)
}
