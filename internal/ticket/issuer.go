// Package ticket mints ticket numbers and the signed tokens printed on
// tickets, and resolves those tokens back at the door.
package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/crypto/hkdf"

	"github.com/iliyamo/event-booking/internal/model"
)

// NumberPrefix starts every ticket number.
const NumberPrefix = "TKT-"

var (
	ErrInvalidToken = errors.New("invalid ticket token")
	ErrNoSecret     = errors.New("ticket secret is empty")
)

// Issuer mints ticket numbers from a Snowflake node and signs tokens with
// a key derived from the configured secret.  Two processes must use
// different node ids.
type Issuer struct {
	node *snowflake.Node
	key  []byte
}

// NewIssuer builds an issuer for nodeID (0..1023).
func NewIssuer(nodeID int64, secret string) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("ticket: snowflake node %d: %w", nodeID, err)
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("event-booking ticket token v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("ticket: derive key: %w", err)
	}
	return &Issuer{node: node, key: key}, nil
}

// Mint returns a fresh active ticket for bookingID.  It does not persist it.
func (i *Issuer) Mint(bookingID uint64) (model.Ticket, error) {
	id := i.node.Generate()
	return model.Ticket{
		BookingID:    bookingID,
		TicketNumber: NumberPrefix + strings.ToUpper(id.Base36()),
		Status:       model.TicketActive,
	}, nil
}

// Token returns "<ticketNumber>.<signature>" for t.
func (i *Issuer) Token(t model.Ticket) string {
	return t.TicketNumber + "." + base64.RawURLEncoding.EncodeToString(i.sign(t.TicketNumber, t.BookingID))
}

// ParseToken splits a token into its ticket number and signature without
// checking the signature.
func ParseToken(token string) (number string, sig []byte, err error) {
	token = strings.TrimSpace(token)
	dot := strings.LastIndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return "", nil, ErrInvalidToken
	}
	number = token[:dot]
	if !strings.HasPrefix(number, NumberPrefix) {
		return "", nil, ErrInvalidToken
	}
	sig, err = base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	return number, sig, nil
}

// Verify reports whether sig signs number for bookingID.
func (i *Issuer) Verify(number string, bookingID uint64, sig []byte) bool {
	return hmac.Equal(sig, i.sign(number, bookingID))
}

func (i *Issuer) sign(number string, bookingID uint64) []byte {
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(number))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatUint(bookingID, 10)))
	return mac.Sum(nil)
}
