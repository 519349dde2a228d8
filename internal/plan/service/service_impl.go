package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/paissive/monetize/internal/clock"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/paissive/monetize/pkg/db"
	"github.com/paissive/monetize/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo repository.Repository[plandomain.Plan]
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[plandomain.Plan](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreateRequest) (*plandomain.Plan, error) {
	code := slug.Make(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, plandomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, plandomain.ErrInvalidName
	}
	if req.Amount.IsNegative() {
		return nil, plandomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, plandomain.ErrInvalidCurrency
	}
	period, ok := usagedomain.ParsePeriod(req.Period)
	if !ok {
		return nil, plandomain.ErrInvalidPeriod
	}

	var descriptionPtr *string
	if req.Description != nil {
		if description := strings.TrimSpace(*req.Description); description != "" {
			descriptionPtr = &description
		}
	}

	now := s.clock.Now()
	plan := &plandomain.Plan{
		ID:          s.genID.Generate().Int64(),
		Code:        code,
		Name:        name,
		Description: descriptionPtr,
		Amount:      req.Amount,
		Currency:    currency,
		Period:      period,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		plan.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Create(ctx, plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, plandomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("plan created", zap.String("code", code), zap.String("period", string(period)))
	return plan, nil
}

func (s *Service) Update(ctx context.Context, req plandomain.UpdateRequest) (*plandomain.Plan, error) {
	plan, err := s.findByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, plandomain.ErrInvalidName
		}
		plan.Name = name
	}
	if req.Description != nil {
		if description := strings.TrimSpace(*req.Description); description == "" {
			plan.Description = nil
		} else {
			plan.Description = &description
		}
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, plandomain.ErrInvalidAmount
		}
		plan.Amount = *req.Amount
	}
	if req.Metadata != nil {
		plan.Metadata = datatypes.JSONMap(req.Metadata)
	}

	plan.UpdatedAt = s.clock.Now()
	if err := s.save(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) Archive(ctx context.Context, id string) (*plandomain.Plan, error) {
	plan, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	plan.Active = false
	plan.UpdatedAt = s.clock.Now()
	if err := s.save(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) Get(ctx context.Context, id string) (*plandomain.Plan, error) {
	return s.findByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*plandomain.Plan, error) {
	code = slug.Make(strings.TrimSpace(code))
	if code == "" {
		return nil, plandomain.ErrInvalidCode
	}

	plan, err := s.repo.FindOne(ctx, &plandomain.Plan{Code: code})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context, req plandomain.ListRequest) ([]plandomain.Plan, error) {
	stmt := s.db.WithContext(ctx).Model(&plandomain.Plan{})
	if req.Active != nil {
		stmt = stmt.Where("active = ?", *req.Active)
	}

	var items []plandomain.Plan
	if err := stmt.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) findByID(ctx context.Context, id string) (*plandomain.Plan, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, plandomain.ErrInvalidID
	}

	plan, err := s.repo.FindOne(ctx, &plandomain.Plan{ID: planID.Int64()})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	return plan, nil
}

// save writes all mutable columns explicitly so cleared pointers and
// deactivation are not dropped as zero values.
func (s *Service) save(ctx context.Context, plan *plandomain.Plan) error {
	return s.db.WithContext(ctx).
		Model(&plandomain.Plan{}).
		Where("id = ?", plan.ID).
		Updates(map[string]any{
			"name":        plan.Name,
			"description": plan.Description,
			"amount":      plan.Amount,
			"active":      plan.Active,
			"metadata":    plan.Metadata,
			"updated_at":  plan.UpdatedAt,
		}).Error
}
