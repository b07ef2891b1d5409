// Package mailer sends caregiver alert emails through SendGrid.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Config struct {
	APIKey    string
	FromName  string
	FromEmail string
}

type Mailer struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

// DoseAlert is the payload of one missed/skipped notification.
type DoseAlert struct {
	CaregiverName  string
	CaregiverEmail string
	PatientName    string
	MedicationName string
	ScheduledTime  string
	Status         string
	Reason         string
}

func New(cfg Config) (*Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	fromName := strings.TrimSpace(cfg.FromName)
	if fromName == "" {
		fromName = "Medication Companion"
	}
	fromEmail := strings.TrimSpace(cfg.FromEmail)
	if fromEmail == "" {
		fromEmail = "no-reply@example.com"
	}
	return &Mailer{
		client:    sendgrid.NewSendClient(strings.TrimSpace(cfg.APIKey)),
		fromName:  fromName,
		fromEmail: fromEmail,
	}, nil
}

const alertHTML = `
<div style="font-family: system-ui, -apple-system, BlinkMacSystemFont,
            'Segoe UI', sans-serif; line-height:1.5;">
  <h2>Medication alert for {{.PatientName}}</h2>
  <p>Dear {{.CaregiverDisplay}},</p>
  <p>
    This is an automated notification from the
    <strong>Medication Companion</strong> app.
  </p>
  <ul>
    <li><strong>Patient:</strong> {{.PatientName}}</li>
    <li><strong>Medication:</strong> {{.MedicationName}}</li>
    <li><strong>Scheduled time:</strong> {{.ScheduledTime}}</li>
    <li><strong>Status:</strong> {{.Status}}</li>
  </ul>
  {{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
  <p style="margin-top:1rem; font-size: 14px; color:#555;">
    This message is for awareness only. It does not replace professional
    medical advice. Please check in with the patient directly if you are
    concerned.
  </p>
</div>
`

var alertTemplate = template.Must(template.New("alert").Parse(alertHTML))

// RenderAlert produces the subject and HTML body for an alert.
func RenderAlert(alert DoseAlert) (subject string, html string, err error) {
	subject = fmt.Sprintf(
		"[Medication Companion] Dose %s: %s for %s",
		alert.Status,
		alert.MedicationName,
		alert.PatientName,
	)

	caregiverDisplay := strings.TrimSpace(alert.CaregiverName)
	if caregiverDisplay == "" {
		caregiverDisplay = "caregiver"
	}
	data := struct {
		DoseAlert
		CaregiverDisplay string
	}{alert, caregiverDisplay}

	body := &bytes.Buffer{}
	if err := alertTemplate.Execute(body, data); err != nil {
		return "", "", fmt.Errorf("templating alert email: %w", err)
	}
	return subject, body.String(), nil
}

// SendDoseAlert delivers one alert email. No retries; the caller decides
// whether a failure is worth surfacing.
func (m *Mailer) SendDoseAlert(ctx context.Context, alert DoseAlert) error {
	if strings.TrimSpace(alert.CaregiverEmail) == "" {
		return errors.New("caregiver email is required")
	}

	subject, html, err := RenderAlert(alert)
	if err != nil {
		return err
	}

	message := mail.NewV3Mail()
	message.From = mail.NewEmail(m.fromName, m.fromEmail)
	message.Subject = subject

	personalization := mail.NewPersonalization()
	personalization.To = append(personalization.To, mail.NewEmail(alert.CaregiverName, alert.CaregiverEmail))
	message.Personalizations = append(message.Personalizations, personalization)
	message.Content = append(message.Content, mail.NewContent("text/html", html))

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sending mail through SendGrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2XX response while sending mail through SendGrid: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
