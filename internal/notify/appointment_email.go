package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/hackgods/therapy-booking/internal/appointment"
)

const appointmentTemplate = `<!DOCTYPE html>
<html>
<body>
  <h2>{{.Heading}}</h2>
  <p>Dear {{.Name}},</p>
  <p>{{.Lead}}</p>
  <h3>{{.DetailsTitle}}</h3>
  <ul>
    <li><strong>Session:</strong> {{.SessionName}}</li>
    <li><strong>Therapist:</strong> {{.TherapistName}}</li>
    <li><strong>Date:</strong> {{.Date}}</li>
    <li><strong>Time:</strong> {{.Time}}</li>
    <li><strong>Duration:</strong> {{.Duration}} minutes</li>
    <li><strong>Price:</strong> Rs.{{.Price}}</li>
    <li><strong>Location:</strong> {{.Location}}</li>
    {{if .PaymentMethod}}<li><strong>Payment Method:</strong> {{.PaymentMethod}}</li>{{end}}
    <li><strong>Status:</strong> {{.Status}}</li>
  </ul>
  <p>Please arrive 10 minutes before your scheduled time.</p>
  <p>If you need to make any changes, please contact us at least 24 hours in advance.</p>
  <p>Best regards,<br>The MindConnect Team</p>
</body>
</html>`

var appointmentTmpl = template.Must(template.New("appointment").Parse(appointmentTemplate))

type appointmentEmailData struct {
	Heading       string
	Lead          string
	DetailsTitle  string
	Name          string
	SessionName   string
	TherapistName string
	Date          string
	Time          string
	Duration      int
	Price         int
	Location      string
	PaymentMethod string
	Status        string
}

type emailCopy struct {
	subject string
	heading string
	lead    string
	details string
}

var copies = map[appointment.NotificationKind]emailCopy{
	appointment.NotifyBooked: {
		subject: "Appointment Confirmation - MindConnect",
		heading: "Appointment Confirmation",
		lead:    "Your appointment has been successfully booked!",
		details: "Appointment Details:",
	},
	appointment.NotifyRescheduled: {
		subject: "Appointment Rescheduled - MindConnect",
		heading: "Appointment Rescheduled",
		lead:    "Your appointment has been successfully rescheduled!",
		details: "Updated Appointment Details:",
	},
	appointment.NotifyDateTimeUpdated: {
		subject: "Appointment Time Updated - MindConnect",
		heading: "Appointment Time Updated",
		lead:    "The date and time of your appointment have been updated.",
		details: "Updated Appointment Details:",
	},
}

// AppointmentNotifier renders appointment emails and hands them to an
// EmailSender.
type AppointmentNotifier struct {
	sender EmailSender
}

func NewAppointmentNotifier(sender EmailSender) *AppointmentNotifier {
	return &AppointmentNotifier{sender: sender}
}

func (n *AppointmentNotifier) Notify(ctx context.Context, kind appointment.NotificationKind, d appointment.AppointmentDetail) error {
	to, name := d.ContactEmail()
	if to == "" {
		return fmt.Errorf("notify: appointment %s has no contact email", d.ID)
	}

	msg, err := BuildAppointmentEmail(kind, d)
	if err != nil {
		return err
	}
	msg.To = to
	msg.ToName = name
	return n.sender.Send(ctx, msg)
}

// BuildAppointmentEmail renders the subject and bodies for kind.
func BuildAppointmentEmail(kind appointment.NotificationKind, d appointment.AppointmentDetail) (EmailMessage, error) {
	c, ok := copies[kind]
	if !ok {
		return EmailMessage{}, fmt.Errorf("notify: unknown notification kind %q", kind)
	}

	_, name := d.ContactEmail()
	if name == "" {
		name = "there"
	}
	data := appointmentEmailData{
		Heading:       c.heading,
		Lead:          c.lead,
		DetailsTitle:  c.details,
		Name:          name,
		Date:          d.Date.Format("January 2, 2006"),
		Time:          d.Time,
		Duration:      d.Duration,
		Price:         d.Price,
		Location:      d.Location,
		PaymentMethod: d.PaymentMethod,
		Status:        statusLabel(d.Status),
	}
	if d.Session != nil {
		data.SessionName = d.Session.Name
	}
	if d.Therapist != nil {
		data.TherapistName = d.Therapist.Name
	}

	var buf bytes.Buffer
	if err := appointmentTmpl.Execute(&buf, data); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s email: %w", kind, err)
	}

	text := fmt.Sprintf("%s\n\n%s %s with %s on %s at %s.", c.heading, c.lead, data.SessionName, data.TherapistName, data.Date, data.Time)
	return EmailMessage{
		Subject: c.subject,
		Body:    text,
		HTML:    buf.String(),
	}, nil
}

func statusLabel(s appointment.AppointmentStatus) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}
