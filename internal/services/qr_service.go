package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image/png"
	"log"

	"github.com/ruralpay/collections/internal/scope"
	"github.com/skip2/go-qrcode"
)

const (
	defaultCardSize = 256
	maxCardSize     = 1024
)

// QRService renders account cards that agents scan in the field to pick the
// customer's savings account.
type QRService struct {
	db *sql.DB
}

func NewQRService(db *sql.DB) *QRService {
	return &QRService{db: db}
}

// AccountCardPayload is the content encoded in an account card.
type AccountCardPayload struct {
	AccountID  string `json:"accountId"`
	CustomerID string `json:"customerId"`
	CompanyID  string `json:"companyId"`
	Name       string `json:"name"`
}

// AccountCard returns a PNG QR code identifying the account.
func (s *QRService) AccountCard(ctx context.Context, sc scope.Scope, accountID string, size int) ([]byte, error) {
	if err := accountInScope(ctx, s.db, sc, accountID); err != nil {
		return nil, err
	}

	var p AccountCardPayload
	var first, last string
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, c.id, c.company_id, c.first_name, c.last_name
		FROM savings_accounts a
		JOIN customers c ON c.id = a.customer_id
		WHERE a.id = $1`, accountID).Scan(&p.AccountID, &p.CustomerID, &p.CompanyID, &first, &last)
	if err != nil {
		return nil, err
	}
	p.Name = first + " " + last

	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	if size <= 0 || size > maxCardSize {
		size = defaultCardSize
	}
	qr, err := qrcode.New(string(data), qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(size)); err != nil {
		return nil, err
	}

	log.Printf("[QR] Rendered account card for %s", accountID)
	return buf.Bytes(), nil
}
