// Package notify builds and sends the outbound SOS notification.
package notify

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"strconv"
	texttmpl "text/template"
)

const Subject = "🆘 URGENT: SOS Alert - Immediate Assistance Needed"

// Payload is the notification boundary contract. Coordinates are absent when the
// reporter's position was not captured.
type Payload struct {
	LocationLat    *float64 `json:"location_lat"`
	LocationLng    *float64 `json:"location_lng"`
	UserEmail      string   `json:"user_email" binding:"required"`
	UserName       string   `json:"user_name" binding:"required"`
	RecipientEmail string   `json:"recipient_email" binding:"required"`
}

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// MapURL links to the coordinates on Google Maps, or returns "" without a full pair.
func MapURL(lat, lng *float64) string {
	if lat == nil || lng == nil {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s", formatCoord(*lat), formatCoord(*lng))
}

// formatCoord prints the shortest exact form, so 37.0 becomes "37".
func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var htmlBody = htmltmpl.Must(htmltmpl.New("sos.html").Parse(`
<h1>Emergency SOS Alert</h1>
<p>An urgent help request has been received from:</p>
<p>
  Name: {{.UserName}}<br>
  Email: {{.UserEmail}}
</p>
<h2>Location Details:</h2>
{{- if .MapURL}}
<p>
  <a href="{{.MapURL}}" style="color: #2563eb;">Click here to view location on Google Maps</a>
</p>
{{- if .Address}}
<p>Approximate address: {{.Address}}</p>
{{- end}}
{{- else}}
<p>Location was not shared by the reporter.</p>
{{- end}}
<p style="color: #dc2626; font-weight: bold;">This person needs immediate assistance. Please respond as soon as possible.</p>
`))

var textBody = texttmpl.Must(texttmpl.New("sos.txt").Parse(`Emergency SOS Alert

An urgent help request has been received from:
Name: {{.UserName}}
Email: {{.UserEmail}}

{{if .MapURL}}Location: {{.MapURL}}
{{if .Address}}Approximate address: {{.Address}}
{{end}}{{else}}Location was not shared by the reporter.
{{end}}
This person needs immediate assistance. Please respond as soon as possible.
`))

type bodyData struct {
	UserName  string
	UserEmail string
	MapURL    string
	Address   string
}

// BuildMessage renders the email for a payload. address is optional.
func BuildMessage(p Payload, address string) (Message, error) {
	data := bodyData{
		UserName:  p.UserName,
		UserEmail: p.UserEmail,
		MapURL:    MapURL(p.LocationLat, p.LocationLng),
		Address:   address,
	}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("failed to render html body: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("failed to render text body: %w", err)
	}

	return Message{
		To:      p.RecipientEmail,
		Subject: Subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
