package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
)

// QR payload formats the importer can emit for printing
const (
	PayloadComposite = "composite"
	PayloadToken     = "token"
)

// WriteQRPayloads writes one CSV row per ticket: event_id, ticket_id, code, signed payload.
// ttl only applies to token payloads.
func WriteQRPayloads(w io.Writer, manifests []*Manifest, signer *service.QRSigner, format string, ttl time.Duration) error {
	if signer == nil {
		return fmt.Errorf("a QR secret is required to sign payloads")
	}
	if format != PayloadComposite && format != PayloadToken {
		return fmt.Errorf("unknown payload format %q", format)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"event_id", "ticket_id", "code", "payload"}); err != nil {
		return err
	}
	for _, m := range manifests {
		for _, t := range m.Tickets {
			var payload string
			if format == PayloadToken {
				token, err := signer.SignToken(m.Event.ID, t.Code, ttl)
				if err != nil {
					return fmt.Errorf("failed to sign %s/%s: %w", m.Event.ID, t.Code, err)
				}
				payload = token
			} else {
				payload = signer.SignComposite(m.Event.ID, t.Code)
			}
			if err := cw.Write([]string{m.Event.ID, t.ID, t.Code, payload}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
