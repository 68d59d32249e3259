// Package notify sends best-effort decision notices to applicants over SES
// email and SNS SMS.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loan-club/internal/common/logger"
	"loan-club/internal/common/metrics"
	"loan-club/internal/models"

	"github.com/google/uuid"
)

type EmailSender interface {
	SendText(ctx context.Context, to, subject, body string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	Timeout      time.Duration
}

type ServiceDependencies struct {
	Email  EmailSender
	SMS    SMSSender
	Logger logger.Logger
}

type Service struct {
	config *Config
	email  EmailSender
	sms    SMSSender
	logger logger.Logger
	now    func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config: config,
		email:  deps.Email,
		sms:    deps.SMS,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
		now:    time.Now,
	}
}

// NotifyDecision satisfies the lifecycle notifier; failures are only logged.
func (s *Service) NotifyDecision(ctx context.Context, app models.Application, owner *models.User) {
	sum := summarize(s.Send(ctx, app, owner))
	fields := map[string]interface{}{
		"applicationId": app.ID,
		"decision":      app.Status,
		"channels":      sum.total,
		"sent":          sum.sent,
		"failed":        sum.failed,
		"disabled":      sum.disabled,
		"deliveredOn":   strings.Join(sum.delivered, ","),
	}
	if sum.failed > 0 {
		s.logger.Warn("decision notice incomplete", fields)
		return
	}
	s.logger.Info("decision notice processed", fields)
}

type deliverySummary struct {
	total, sent, failed, disabled int
	delivered                     []string
}

func summarize(records []models.Notification) deliverySummary {
	sum := deliverySummary{total: len(records)}
	for _, n := range records {
		switch n.Status {
		case models.NotificationSent:
			sum.sent++
			sum.delivered = append(sum.delivered, n.Channel)
		case models.NotificationFailed:
			sum.failed++
		default:
			sum.disabled++
		}
	}
	return sum
}

// Send delivers the notice on every enabled channel the owner can be reached
// on and reports one record per channel.
func (s *Service) Send(ctx context.Context, app models.Application, owner *models.User) []models.Notification {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	subject, body := renderDecision(app, owner)
	var out []models.Notification

	if email := strings.TrimSpace(owner.Email); email != "" {
		out = append(out, s.deliver(ctx, app.ID, models.ChannelEmail, email, s.config.EmailEnabled && s.email != nil,
			func() (string, error) { return s.email.SendText(ctx, email, subject, body) }))
	}
	if phone := strings.TrimSpace(owner.Phone); phone != "" {
		out = append(out, s.deliver(ctx, app.ID, models.ChannelSMS, phone, s.config.SMSEnabled && s.sms != nil,
			func() (string, error) { return s.sms.SendSMS(ctx, phone, subject) }))
	}
	return out
}

func (s *Service) deliver(ctx context.Context, appID, channel, recipient string, enabled bool, send func() (string, error)) models.Notification {
	n := models.Notification{
		ID:            uuid.NewString(),
		ApplicationID: appID,
		Recipient:     recipient,
		Channel:       channel,
		Status:        models.NotificationDisabled,
		SentAt:        s.now().UTC().Format(time.RFC3339),
	}
	if !enabled {
		metrics.NotificationsSent.WithLabelValues(channel, n.Status).Inc()
		return n
	}

	providerID, err := send()
	if err != nil {
		n.Status = models.NotificationFailed
		s.logger.Error("notification send failed", map[string]interface{}{
			"error":         err,
			"channel":       channel,
			"applicationId": appID,
		})
	} else {
		n.Status = models.NotificationSent
		n.ProviderID = providerID
		s.logger.Info("notification sent", map[string]interface{}{
			"channel":       channel,
			"applicationId": appID,
			"providerId":    providerID,
		})
	}
	metrics.NotificationsSent.WithLabelValues(channel, n.Status).Inc()
	return n
}

func renderDecision(app models.Application, owner *models.User) (string, string) {
	subject := fmt.Sprintf("Loan Club: your application %s is %s", app.ID, app.Status)

	name := owner.Name
	if name == "" {
		name = "there"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Your loan application %s for %s (%s) is now %s.\n", app.ID, app.Requested, app.Purpose, app.Status)
	if app.AdminComment != "" {
		fmt.Fprintf(&b, "\nComment from the club: %s\n", app.AdminComment)
	}
	b.WriteString("\nLoan Club\n")
	return subject, b.String()
}
