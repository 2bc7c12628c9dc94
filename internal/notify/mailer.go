package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"cinepay/internal/logger"
	"cinepay/internal/models"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dialer sends prepared messages; *gomail.Dialer satisfies it
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Ticket is everything the confirmation e-mail shows
type Ticket struct {
	To               string
	ReservationID    string
	ConfirmationCode string
	MovieID          string
	Seats            []string
	Amount           models.Money
	Currency         string
	TicketURL        string
	QRPNG            []byte
}

const qrFileName = "ticket-qr.png"

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
  <h2>Your tickets are confirmed</h2>
  <p>Confirmation code: <strong>{{.ConfirmationCode}}</strong></p>
  <p>Reservation: {{.ReservationID}}<br>Movie: {{.MovieID}}<br>Seats: {{.SeatList}}<br>Total: {{.Total}}</p>
  {{if .HasQR}}<p><img src="cid:{{.QRName}}" alt="Ticket QR code" width="256" height="256"></p>{{end}}
  {{if .TicketURL}}<p><a href="{{.TicketURL}}">View your ticket</a></p>{{end}}
</body>
</html>`))

type Mailer struct {
	dialer Dialer
	from   string
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// NewMailerWithDialer is used by tests and alternative transports
func NewMailerWithDialer(d Dialer, from string) *Mailer {
	return &Mailer{dialer: d, from: from}
}

func (m *Mailer) SendConfirmation(ctx context.Context, t Ticket) error {
	if t.To == "" {
		return fmt.Errorf("reservation %s has no recipient", t.ReservationID)
	}

	msg, err := m.buildConfirmation(t)
	if err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}

	logger.WithContext(ctx).Info("Confirmation email sent",
		"reservation_id", t.ReservationID, "confirmation_code", t.ConfirmationCode)
	return nil
}

func (m *Mailer) buildConfirmation(t Ticket) (*gomail.Message, error) {
	total := t.Amount.String()
	if t.Currency != "" && t.Currency != "USD" {
		total = t.Amount.Decimal() + " " + t.Currency
	}

	var body bytes.Buffer
	err := confirmationTemplate.Execute(&body, map[string]interface{}{
		"ConfirmationCode": t.ConfirmationCode,
		"ReservationID":    t.ReservationID,
		"MovieID":          t.MovieID,
		"SeatList":         strings.Join(t.Seats, ", "),
		"Total":            total,
		"TicketURL":        t.TicketURL,
		"HasQR":            len(t.QRPNG) > 0,
		"QRName":           qrFileName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render confirmation email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", t.To)
	msg.SetHeader("Subject", "Your CinePay tickets - "+t.ConfirmationCode)
	msg.SetBody("text/html", body.String())
	if len(t.QRPNG) > 0 {
		png := t.QRPNG
		msg.Embed(qrFileName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}))
	}
	return msg, nil
}
