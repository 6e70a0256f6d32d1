package service

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/zeebo/blake3"
)

const (
	qrURIScheme      = "ticket"
	qrKeyContext     = "booking-rush checkin 2026-01 qr payload mac"
	compositeSep     = "|"
	macEncodedLength = 43 // base64url of 32 bytes, unpadded
)

// ScanPayload is the result of parsing a raw scan
type ScanPayload struct {
	// Code is the normalized ticket code
	Code string
	// EventID is the event embedded in a QR payload, empty for bare codes
	EventID string
	// Signed is true when a MAC or token signature was verified
	Signed bool
}

// QRSigner signs and verifies QR payloads.
//
// Two signed formats are accepted:
//
//	<event_id>|<ticket_code>|<mac>   mac = base64url(BLAKE3-keyed(event_id|ticket_code))
//	<jwt>                            HS256 with claims evt and tkt
type QRSigner struct {
	secret []byte
	macKey [32]byte
}

// NewQRSigner derives the MAC key from secret. A nil signer accepts no signed payloads.
func NewQRSigner(secret string) *QRSigner {
	if secret == "" {
		return nil
	}
	s := &QRSigner{secret: []byte(secret)}
	blake3.DeriveKey(qrKeyContext, []byte(secret), s.macKey[:])
	return s
}

func (s *QRSigner) mac(eventID, code string) []byte {
	h, err := blake3.NewKeyed(s.macKey[:])
	if err != nil {
		panic("checkin: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write([]byte(eventID + compositeSep + code))
	return h.Sum(nil)
}

// SignComposite returns event_id|code|mac
func (s *QRSigner) SignComposite(eventID, code string) string {
	code = domain.NormalizeCode(code)
	return eventID + compositeSep + code + compositeSep + base64.RawURLEncoding.EncodeToString(s.mac(eventID, code))
}

func (s *QRSigner) verifyComposite(eventID, code, encodedMAC string) bool {
	if len(encodedMAC) != macEncodedLength {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(encodedMAC)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, s.mac(eventID, code)) == 1
}

// QRClaims are the claims carried by a signed QR token
type QRClaims struct {
	Event  string `json:"evt"`
	Ticket string `json:"tkt"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 QR token. A zero ttl means no expiry.
func (s *QRSigner) SignToken(eventID, code string, ttl time.Duration) (string, error) {
	claims := QRClaims{
		Event:  eventID,
		Ticket: domain.NormalizeCode(code),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *QRSigner) parseToken(token string) (*QRClaims, error) {
	claims := &QRClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidSignature
	}
	return claims, nil
}

// PayloadParser turns a raw scan into a ticket code and optional embedded event
type PayloadParser struct {
	signer        *QRSigner
	requireSigned bool
}

// NewPayloadParser creates a parser. signer may be nil when no QR secret is configured.
func NewPayloadParser(signer *QRSigner, requireSigned bool) *PayloadParser {
	return &PayloadParser{signer: signer, requireSigned: requireSigned}
}

// Parse extracts the ticket code. MANUAL input is always a bare code.
// Errors are domain payload errors and map to INVALID_FORMAT.
func (p *PayloadParser) Parse(raw string, mode domain.ScanMode) (*ScanPayload, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty code: %w", domain.ErrInvalidPayload)
	}

	var (
		payload *ScanPayload
		err     error
	)
	if mode == domain.ScanModeQR {
		payload, err = p.parseQR(s)
	} else {
		payload = &ScanPayload{Code: s}
	}
	if err != nil {
		return nil, err
	}

	payload.Code = domain.NormalizeCode(payload.Code)
	payload.EventID = strings.TrimSpace(payload.EventID)
	if !domain.ValidCode(payload.Code) {
		return nil, fmt.Errorf("malformed code: %w", domain.ErrInvalidPayload)
	}
	if mode == domain.ScanModeQR && p.requireSigned && !payload.Signed {
		return nil, domain.ErrUnsignedPayload
	}
	return payload, nil
}

func (p *PayloadParser) parseQR(s string) (*ScanPayload, error) {
	switch {
	case strings.HasPrefix(s, "{"):
		return parseJSONPayload(s)
	case strings.HasPrefix(strings.ToLower(s), qrURIScheme+"://"):
		return parseURIPayload(s)
	case strings.Contains(s, compositeSep):
		return p.parseCompositePayload(s)
	case p.signer != nil && looksLikeJWT(s):
		return p.parseTokenPayload(s)
	default:
		return &ScanPayload{Code: s}, nil
	}
}

func parseJSONPayload(s string) (*ScanPayload, error) {
	var body struct {
		EventID    string `json:"event_id"`
		TicketCode string `json:"ticket_code"`
	}
	if err := json.Unmarshal([]byte(s), &body); err != nil {
		return nil, fmt.Errorf("json payload: %w", domain.ErrInvalidPayload)
	}
	return &ScanPayload{Code: body.TicketCode, EventID: body.EventID}, nil
}

// parseURIPayload handles ticket://<event_id>/<ticket_code>
func parseURIPayload(s string) (*ScanPayload, error) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("uri payload: %w", domain.ErrInvalidPayload)
	}
	code := strings.Trim(u.Path, "/")
	if code == "" || strings.Contains(code, "/") {
		return nil, fmt.Errorf("uri payload: %w", domain.ErrInvalidPayload)
	}
	return &ScanPayload{Code: code, EventID: u.Host}, nil
}

func (p *PayloadParser) parseCompositePayload(s string) (*ScanPayload, error) {
	parts := strings.Split(s, compositeSep)
	switch len(parts) {
	case 2:
		return &ScanPayload{EventID: parts[0], Code: parts[1]}, nil
	case 3:
		if p.signer == nil {
			return nil, domain.ErrInvalidSignature
		}
		eventID := strings.TrimSpace(parts[0])
		code := domain.NormalizeCode(parts[1])
		if !p.signer.verifyComposite(eventID, code, strings.TrimSpace(parts[2])) {
			return nil, domain.ErrInvalidSignature
		}
		return &ScanPayload{EventID: eventID, Code: code, Signed: true}, nil
	default:
		return nil, fmt.Errorf("composite payload: %w", domain.ErrInvalidPayload)
	}
}

func (p *PayloadParser) parseTokenPayload(s string) (*ScanPayload, error) {
	if p.signer == nil {
		return nil, domain.ErrInvalidSignature
	}
	claims, err := p.signer.parseToken(s)
	if err != nil {
		return nil, err
	}
	if claims.Event == "" {
		return nil, fmt.Errorf("token without event: %w", domain.ErrInvalidPayload)
	}
	return &ScanPayload{EventID: claims.Event, Code: claims.Ticket, Signed: true}, nil
}

// looksLikeJWT matches header.payload.signature whose header decodes to a JOSE header
func looksLikeJWT(s string) bool {
	header, _, ok := strings.Cut(s, ".")
	if !ok || strings.Count(s, ".") != 2 {
		return false
	}
	raw, err := jwt.NewParser().DecodeSegment(header)
	if err != nil {
		return false
	}
	var h struct {
		Alg string `json:"alg"`
	}
	return json.Unmarshal(raw, &h) == nil && h.Alg != ""
}
