package models

import (
	"time"

	"github.com/google/uuid"
)

// RecipientData is the flat key→value mapping collected from the public
// issuance form. Keys match placeholder IDs plus synthetic fields such as
// "email" or "cpf". It is snapshotted on the certificate row and only
// overwritten through the explicit re-issue path.
type RecipientData map[string]string

// Certificate is the persisted outcome of a successful issuance: a unique
// number, a snapshot of the recipient data, and the stored PDF location.
type Certificate struct {
	ID         uuid.UUID     `json:"id"`
	Number     string        `json:"number"`
	TemplateID uuid.UUID     `json:"template_id"`
	Data       RecipientData `json:"data"`
	PhotoURL   string        `json:"photo_url,omitempty"`
	PDFKey     string        `json:"pdf_key"`
	PDFURL     string        `json:"pdf_url"`
	IssuedAt   time.Time     `json:"issued_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
