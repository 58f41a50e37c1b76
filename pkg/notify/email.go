package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/mcclellann/installments/pkg/models"
	"github.com/sirupsen/logrus"
)

// SMTPConfig holds the mail relay settings for overdue notices.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier mails one digest per sweep listing newly overdue installments.
type EmailNotifier struct {
	cfg    SMTPConfig
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewEmailNotifier creates a notifier that sends through cfg.
func NewEmailNotifier(cfg SMTPConfig, logger *logrus.Logger) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, logger: logger}
	n.send = func(e *email.Email) error {
		addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
		var auth smtp.Auth
		if cfg.Username != "" {
			auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		}
		return e.Send(addr, auth)
	}
	return n
}

// NotifyOverdue sends the digest for notices.
func (n *EmailNotifier) NotifyOverdue(ctx context.Context, notices []models.OverdueNotice) error {
	if len(notices) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = n.cfg.From
	e.To = n.cfg.To
	e.Subject = fmt.Sprintf("%d installment(s) now overdue", len(notices))
	e.Text = []byte(overdueDigest(notices))

	if err := n.send(e); err != nil {
		n.logger.Errorf("Failed to send overdue notice to %s: %v", strings.Join(n.cfg.To, ", "), err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Infof("Overdue notice sent to %s: %s", strings.Join(n.cfg.To, ", "), e.Subject)
	return nil
}

func overdueDigest(notices []models.OverdueNotice) string {
	var b strings.Builder
	b.WriteString("The following installments passed their due date without being settled:\n\n")
	for _, notice := range notices {
		fmt.Fprintf(&b, "- customer %s, sale %s, plan %s, installment #%d due %s, outstanding %s\n",
			notice.CustomerID, notice.SaleID, notice.PlanID, notice.InstallmentIndex+1,
			notice.DueDate.Format("2006-01-02"), notice.Outstanding.StringFixed(2))
	}
	b.WriteString("\nPlease follow up with the customers listed above.\n")
	return b.String()
}
