package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Period      string          `json:"period"`
	Metadata    map[string]any  `json:"metadata"`
}

type UpdateRequest struct {
	ID          string           `json:"-"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Metadata    map[string]any   `json:"metadata"`
}

type ListRequest struct {
	Active *bool
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Plan, error)
	Update(ctx context.Context, req UpdateRequest) (*Plan, error)
	Archive(ctx context.Context, id string) (*Plan, error)
	Get(ctx context.Context, id string) (*Plan, error)
	GetByCode(ctx context.Context, code string) (*Plan, error)
	List(ctx context.Context, req ListRequest) ([]Plan, error)
}

var (
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvalidID       = errors.New("invalid_id")
	ErrDuplicateCode   = errors.New("duplicate_code")
	ErrNotFound        = errors.New("not_found")
)
