// Package doctors matches confirmed appointments to doctors using a scored
// scan over reference data, and notifies the chosen doctor over WhatsApp.
package doctors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ivx-health/aia/internal/messaging"
	"github.com/ivx-health/aia/internal/models"
)

// Scoring weights. Specialty fit and availability dominate; pediatric fit and
// seniority break ties.
const (
	specialtyScore  = 3
	availableScore  = 3
	pediatricScore  = 2
	experienceScore = 2

	// seniorityYears is the experience threshold for the seniority bonus.
	seniorityYears = 10
)

// Matcher scores doctors against appointments.
type Matcher struct {
	doctors []models.Doctor
}

// NewMatcher creates a matcher over the given doctor reference data.
func NewMatcher(doctors []models.Doctor) *Matcher {
	slog.Debug("Creating doctors Matcher", "doctors", len(doctors))
	return &Matcher{doctors: doctors}
}

// Match returns the highest-scoring doctor for an appointment, or nil when no
// doctors are registered. Ties keep the earlier doctor in the list.
func (m *Matcher) Match(appt models.Appointment) *models.Doctor {
	if len(m.doctors) == 0 {
		return nil
	}

	bestIdx := -1
	bestScore := -1
	for i := range m.doctors {
		score := scoreDoctor(&m.doctors[i], appt)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	best := m.doctors[bestIdx]
	slog.Debug("Matcher selected doctor", "doctor", best.FullName, "score", bestScore, "code", appt.BookingCode)
	return &best
}

func scoreDoctor(doc *models.Doctor, appt models.Appointment) int {
	procedure := strings.ToLower(appt.ProcedureType)
	note := strings.ToLower(appt.AdditionalNote)

	score := 0
	for _, specialty := range doc.Specialties {
		s := strings.ToLower(specialty)
		if s != "" && (strings.Contains(procedure, s) || strings.Contains(s, procedure)) {
			score += specialtyScore
			break
		}
	}
	if doc.Available {
		score += availableScore
	}
	if hasSpecialty(doc, "pediatrics") && mentionsChild(procedure+" "+note) {
		score += pediatricScore
	}
	if doc.YearsExperience >= seniorityYears {
		score += experienceScore
	}
	return score
}

func hasSpecialty(doc *models.Doctor, specialty string) bool {
	for _, s := range doc.Specialties {
		if strings.EqualFold(s, specialty) {
			return true
		}
	}
	return false
}

func mentionsChild(text string) bool {
	for _, marker := range []string{"child", "kid", "pediatric", "baby", "infant"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Notifier assigns a doctor and messages them the appointment details. It
// implements the dispatcher's DoctorAssigner interface.
type Notifier struct {
	matcher *Matcher
	sender  messaging.Service
}

// NewNotifier wires a matcher to a messaging service.
func NewNotifier(matcher *Matcher, sender messaging.Service) *Notifier {
	return &Notifier{matcher: matcher, sender: sender}
}

// AssignDoctor picks the best doctor for an appointment and notifies them.
// A nil doctor with a nil error means no doctors are registered.
func (n *Notifier) AssignDoctor(ctx context.Context, appt models.Appointment) (*models.Doctor, error) {
	doctor := n.matcher.Match(appt)
	if doctor == nil {
		return nil, nil
	}

	message := fmt.Sprintf(
		"New appointment %s: %s on %s at %s, %s.\nPatient: %s (%s).",
		appt.BookingCode, appt.ProcedureType, appt.Date, appt.Time, appt.Location,
		appt.PatientName, appt.PatientGender,
	)
	if err := n.sender.SendMessage(ctx, doctor.PhoneNumber, message); err != nil {
		return nil, fmt.Errorf("failed to notify doctor %s: %w", doctor.FullName, err)
	}
	slog.Info("Notifier doctor assigned", "doctor", doctor.FullName, "code", appt.BookingCode)
	return doctor, nil
}

// DefaultDoctors is the built-in doctor reference data used when no external
// source is configured.
func DefaultDoctors() []models.Doctor {
	return []models.Doctor{
		{
			ID:              "doc-001",
			FullName:        "Dr. Elena Reyes",
			PhoneNumber:     "15550100001",
			Specialties:     []string{"general dentistry", "dental cleaning"},
			YearsExperience: 12,
			Available:       true,
		},
		{
			ID:              "doc-002",
			FullName:        "Dr. Samuel Okafor",
			PhoneNumber:     "15550100002",
			Specialties:     []string{"orthodontics"},
			YearsExperience: 8,
			Available:       true,
		},
		{
			ID:              "doc-003",
			FullName:        "Dr. Priya Nair",
			PhoneNumber:     "15550100003",
			Specialties:     []string{"pediatrics", "general dentistry"},
			YearsExperience: 15,
			Available:       false,
		},
		{
			ID:              "doc-004",
			FullName:        "Dr. Marcus Webb",
			PhoneNumber:     "15550100004",
			Specialties:     []string{"oral surgery"},
			YearsExperience: 20,
			Available:       true,
		},
	}
}
