package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo     Repo
	resolver catalog.Resolver
	cache    Cache
	log      *zap.Logger
	sfg      singleflight.Group
}

func NewService(repo Repo, resolver catalog.Resolver, cache Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, resolver: resolver, cache: cache, log: log}
}

// AddItem resolves the selection and merges it into the user's cart, creating
// the cart on first use. Nothing is reserved.
func (s *Service) AddItem(ctx context.Context, userID string, in AddInput) (Line, error) {
	if err := requireUser(userID); err != nil {
		return Line{}, err
	}
	if in.Quantity == 0 {
		return Line{}, apperr.Invalid("productId, quantity, and size are required")
	}
	if in.Quantity < 0 {
		return Line{}, apperr.Invalid("quantity must be at least 1")
	}
	if in.Quantity > catalog.MaxQuantity {
		return Line{}, apperr.Invalid(fmt.Sprintf("quantity must be at most %d", catalog.MaxQuantity))
	}
	sel := catalog.Selection{ProductID: in.ProductID, Size: in.Size, ColorID: in.ColorID}
	if err := sel.Validate(); err != nil {
		return Line{}, err
	}

	unit, err := s.resolver.Resolve(ctx, sel)
	if err != nil {
		return Line{}, err
	}

	line, err := s.repo.AddLine(ctx, userID, unit.SizeID, in.Quantity)
	if err != nil {
		return Line{}, err
	}
	s.Invalidate(ctx, userID)
	return line, nil
}

// UpdateQuantity sets the quantity of a line. Zero or less is rejected;
// callers remove the line instead.
func (s *Service) UpdateQuantity(ctx context.Context, userID string, itemID int64, qty int) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if itemID <= 0 {
		return apperr.Invalid("cart item id must be positive")
	}
	if qty < 1 {
		return apperr.Invalid("quantity must be at least 1")
	}
	if qty > catalog.MaxQuantity {
		return apperr.Invalid(fmt.Sprintf("quantity must be at most %d", catalog.MaxQuantity))
	}
	if err := s.repo.SetQuantity(ctx, userID, itemID, qty); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// RemoveItem deletes a line; removing a missing line succeeds.
func (s *Service) RemoveItem(ctx context.Context, userID string, itemID int64) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if itemID <= 0 {
		return apperr.Invalid("cart item id must be positive")
	}
	if err := s.repo.RemoveLine(ctx, userID, itemID); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.repo.Clear(ctx, userID); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// ListItems returns the enriched cart, from cache when the cached listing is
// still at the current version.
func (s *Service) ListItems(ctx context.Context, userID string) ([]Item, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	version, err := s.cache.Version(ctx, userID)
	if err != nil {
		s.log.Warn("cart cache version unavailable", zap.String("user_id", userID), zap.Error(err))
		return s.repo.Items(ctx, userID)
	}

	v, err, _ := s.sfg.Do(fmt.Sprintf("%s:%d", userID, version), func() (any, error) {
		items, err := s.cache.Get(ctx, userID, version)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		items, err = s.repo.Items(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, userID, version, items); err != nil {
			s.log.Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Item), nil
}

// Invalidate drops cached listings for the user. Checkout calls it after
// removing frozen lines.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Error("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Invalid("user id is required")
	}
	return nil
}
