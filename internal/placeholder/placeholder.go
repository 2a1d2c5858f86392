// Package placeholder resolves {{token}} references in template text
// against recipient-submitted and system-generated values. It is a pure
// string transform with no I/O; the renderer calls it per text element.
package placeholder

import (
	"strings"
	"time"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

// System fields merged into every resolved value mapping.
const (
	FieldIssueDate       = "issue_date"
	FieldCertificateID   = "certificate_id"
	FieldCertificateLink = "certificate_link"
)

// SystemFields carries the values the issuance pipeline generates itself.
type SystemFields struct {
	IssueDate       time.Time
	CertificateID   string
	CertificateLink string
}

// Substitute replaces every {{key}} token whose key exists in values with
// the mapped value. Replacement is literal (no re-substitution of the
// replacement text) and global. Unknown tokens pass through untouched so
// a half-configured template still renders something inspectable.
func Substitute(text string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			b.WriteString(text)
			return b.String()
		}
		end += start
		key := strings.TrimSpace(text[start+2 : end])
		if val, ok := values[key]; ok {
			b.WriteString(text[:start])
			b.WriteString(val)
		} else {
			b.WriteString(text[:end+2])
		}
		text = text[end+2:]
	}
}

// Values builds the resolved mapping for one issuance: recipient data
// merged with system fields, with email values exposed under every alias
// downstream consumers expect.
//
// Email aliasing: a value submitted under an email-ish field id is also
// written under the generic keys "email", "recipient_email", and
// "default_email". Different template generations read different keys, so
// all aliases are kept populated. Recipient-supplied keys win over the
// generated aliases but never over the system fields.
func Values(tmpl *models.Template, data models.RecipientData, sys SystemFields) map[string]string {
	values := make(map[string]string, len(data)+8)

	for k, v := range data {
		values[k] = v
	}

	if email := FindEmail(tmpl, data); email != "" {
		for _, alias := range []string{"email", "recipient_email", "default_email"} {
			if _, ok := values[alias]; !ok {
				values[alias] = email
			}
		}
	}

	values[FieldIssueDate] = sys.IssueDate.Format("02/01/2006")
	values[FieldCertificateID] = sys.CertificateID
	values[FieldCertificateLink] = sys.CertificateLink

	return values
}

// FindEmail locates the recipient's email: an exact "email" or
// "default_email" key first, then any placeholder whose id or label
// mentions email.
func FindEmail(tmpl *models.Template, data models.RecipientData) string {
	if v := data["email"]; v != "" {
		return v
	}
	if v := data["default_email"]; v != "" {
		return v
	}
	if tmpl == nil {
		return ""
	}
	for _, p := range tmpl.Placeholders {
		if p.Kind != models.PlaceholderText {
			continue
		}
		if strings.Contains(strings.ToLower(p.ID), "email") || strings.Contains(strings.ToLower(p.Label), "email") {
			if v := data[p.ID]; v != "" {
				return v
			}
		}
	}
	return ""
}
