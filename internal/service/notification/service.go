package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/triage-api/internal/email"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/messaging"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

const (
	alertMessageType = "STAFF_ALERT"
	availableKey     = "staff:available"
)

// Service delivers staff alerts.
type Service interface {
	NotifyStaff(ctx context.Context, staffID string, alert model.StaffAlert, urgency model.Urgency) error
	NotifyAllAvailableStaff(ctx context.Context, alert model.StaffAlert, urgency model.Urgency) error
}

// AlertChannel is the per-staff in-app channel.
func AlertChannel(staffID string) string {
	return "staff:" + staffID + ":alerts"
}

// InAppAlert is what the in-app channel carries.
type InAppAlert struct {
	model.StaffAlert
	StaffID string        `json:"staff_id"`
	Urgency model.Urgency `json:"urgency"`
	SentAt  time.Time     `json:"sent_at"`
}

type Config struct {
	CacheTTL time.Duration
}

type service struct {
	staff   repository.StaffRepository
	broker  messaging.Broker
	email   email.Service
	cache   *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewService wires the delivery channels. broker and emailSvc may be nil to
// disable in-app and e-mail delivery respectively.
func NewService(cfg Config, staff repository.StaffRepository, broker messaging.Broker, emailSvc email.Service, log *logger.Logger, m *metrics.Metrics) Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &service{
		staff:   staff,
		broker:  broker,
		email:   emailSvc,
		cache:   cache.New(ttl, 2*ttl),
		logger:  log.With("component", "notification_service"),
		metrics: m,
	}
}

func (s *service) NotifyStaff(ctx context.Context, staffID string, alert model.StaffAlert, urgency model.Urgency) error {
	member, err := s.lookup(ctx, staffID)
	if err != nil {
		return err
	}
	return s.deliver(ctx, member, alert, urgency)
}

func (s *service) NotifyAllAvailableStaff(ctx context.Context, alert model.StaffAlert, urgency model.Urgency) error {
	staff, err := s.available(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, member := range staff {
		if err := s.deliver(ctx, member, alert, urgency); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *service) deliver(ctx context.Context, member *model.Staff, alert model.StaffAlert, urgency model.Urgency) error {
	var errs []error

	if s.broker != nil {
		msg := messaging.Message{
			Type: alertMessageType,
			Payload: InAppAlert{
				StaffAlert: alert,
				StaffID:    member.ID,
				Urgency:    urgency,
				SentAt:     time.Now().UTC(),
			},
		}
		err := s.broker.Publish(ctx, AlertChannel(member.ID), msg)
		s.record(model.ChannelInApp, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("in-app alert to %s: %w", member.ID, err))
		}
	}

	if s.email != nil && urgency == model.UrgencyHigh && member.Email != "" {
		err := s.email.SendCustom(ctx, member.Email, alert.Title, alert.Body)
		s.record(model.ChannelEmail, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("email alert to %s: %w", member.ID, err))
		}
	}

	s.logger.Debug("Staff alerted",
		"staff_id", member.ID,
		"patient_id", alert.PatientID,
		"event_type", string(alert.EventType),
		"urgency", string(urgency))
	return errors.Join(errs...)
}

func (s *service) lookup(ctx context.Context, staffID string) (*model.Staff, error) {
	if cached, ok := s.cache.Get("staff:" + staffID); ok {
		return cached.(*model.Staff), nil
	}

	member, err := s.staff.GetByID(ctx, staffID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &model.StaffNotFoundError{StaffID: staffID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staff %s: %w", staffID, err)
	}
	s.cache.SetDefault("staff:"+staffID, member)
	return member, nil
}

func (s *service) available(ctx context.Context) ([]*model.Staff, error) {
	if cached, ok := s.cache.Get(availableKey); ok {
		return cached.([]*model.Staff), nil
	}

	staff, err := s.staff.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list available staff: %w", err)
	}
	s.cache.SetDefault(availableKey, staff)
	return staff, nil
}

func (s *service) record(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	s.metrics.NotificationsSent.WithLabelValues(channel, status).Inc()
}
