// Package storetest is an in-memory catalog, cart and order store for tests
// that run without Postgres. A single mutex stands in for the row locks the
// Postgres repositories take.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type User struct {
	FirstName string
	LastName  string
	Email     string
}

type Store struct {
	mu sync.Mutex

	units      map[int64]catalog.Unit
	colors     map[int64]string
	users      map[string]User
	businesses map[int64]string

	carts    map[string]int64
	lines    map[int64]cart.Line
	nextCart int64
	nextLine int64

	orders map[string]orders.Order
	keys   map[string]string
}

func New() *Store {
	return &Store{
		units:      map[int64]catalog.Unit{},
		colors:     map[int64]string{},
		users:      map[string]User{},
		businesses: map[int64]string{},
		carts:      map[string]int64{},
		lines:      map[int64]cart.Line{},
		orders:     map[string]orders.Order{},
		keys:       map[string]string{},
	}
}

var (
	_ catalog.Resolver = (*Store)(nil)
	_ cart.Repo        = (*Store)(nil)
	_ orders.Store     = (*Store)(nil)
)

// PutUnit adds or replaces a product_size row.
func (s *Store) PutUnit(u catalog.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.SizeID] = u
}

// DeleteUnit removes a size row, leaving cart lines that point at it dangling.
func (s *Store) DeleteUnit(sizeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, sizeID)
}

func (s *Store) PutColor(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colors[id] = name
}

func (s *Store) PutUser(id string, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = u
}

func (s *Store) PutBusiness(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[id] = name
}

func (s *Store) Resolve(_ context.Context, sel catalog.Selection) (catalog.Unit, error) {
	if err := sel.Validate(); err != nil {
		return catalog.Unit{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size := strings.TrimSpace(sel.Size)
	var (
		best  catalog.Unit
		found bool
	)
	for _, u := range s.units {
		if u.ProductID != sel.ProductID || u.Size != size {
			continue
		}
		if sel.ColorID != nil && (u.ColorID == nil || *u.ColorID != *sel.ColorID) {
			continue
		}
		if !found || u.SizeID < best.SizeID {
			best, found = u, true
		}
	}
	if !found {
		return catalog.Unit{}, apperr.NotFound("product size not found")
	}
	return best, nil
}

func (s *Store) AddLine(_ context.Context, userID string, sizeID int64, qty int) (cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cartID, ok := s.carts[userID]
	if !ok {
		s.nextCart++
		cartID = s.nextCart
		s.carts[userID] = cartID
	}
	for id, l := range s.lines {
		if l.CartID == cartID && l.SizeID == sizeID {
			if l.Quantity+qty > catalog.MaxQuantity {
				return cart.Line{}, apperr.Invalid(fmt.Sprintf("a cart line may hold at most %d units", catalog.MaxQuantity))
			}
			l.Quantity += qty
			s.lines[id] = l
			return l, nil
		}
	}
	s.nextLine++
	l := cart.Line{ID: s.nextLine, CartID: cartID, SizeID: sizeID, Quantity: qty}
	s.lines[l.ID] = l
	return l, nil
}

func (s *Store) SetQuantity(_ context.Context, userID string, itemID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[itemID]
	if !ok || l.CartID != s.carts[userID] {
		return apperr.NotFound("cart item not found")
	}
	l.Quantity = qty
	s.lines[itemID] = l
	return nil
}

func (s *Store) RemoveLine(_ context.Context, userID string, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lines[itemID]; ok && l.CartID == s.carts[userID] {
		delete(s.lines, itemID)
	}
	return nil
}

func (s *Store) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cartID, ok := s.carts[userID]
	if !ok {
		return nil
	}
	for id, l := range s.lines {
		if l.CartID == cartID {
			delete(s.lines, id)
		}
	}
	return nil
}

func (s *Store) Items(_ context.Context, userID string) ([]cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []cart.Item{}
	for _, l := range s.cartLines(userID) {
		u, ok := s.units[l.SizeID]
		if !ok {
			continue
		}
		it := cart.Item{
			CartItemID:  l.ID,
			SizeID:      l.SizeID,
			ProductID:   u.ProductID,
			BusinessID:  u.BusinessID,
			ProductName: u.ProductName,
			Size:        u.Size,
			ColorID:     u.ColorID,
			Price:       u.Price,
			Quantity:    l.Quantity,
			Stock:       u.Stock,
		}
		if u.ColorID != nil {
			it.ColorName = s.colors[*u.ColorID]
		}
		out = append(out, it)
	}
	return out, nil
}

// Lines returns the raw cart lines of a user ordered by id.
func (s *Store) Lines(userID string) []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLines(userID)
}

func (s *Store) cartLines(userID string) []cart.Line {
	cartID, ok := s.carts[userID]
	if !ok {
		return nil
	}
	var out []cart.Line
	for _, l := range s.lines {
		if l.CartID == cartID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) FreezeCart(_ context.Context, userID, externalID string, build orders.BuildFunc) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byKey(userID, externalID); ok {
		return prev, true, nil
	}

	var snap []orders.SnapshotLine
	for _, l := range s.cartLines(userID) {
		sl := orders.SnapshotLine{CartItemID: l.ID, SizeID: l.SizeID, Quantity: l.Quantity}
		if u, ok := s.units[l.SizeID]; ok {
			sl.Unit = &u
		}
		snap = append(snap, sl)
	}

	o, consumed, err := build(snap)
	if err != nil {
		return orders.Order{}, false, err
	}
	s.insert(o)
	for _, id := range consumed {
		delete(s.lines, id)
	}
	return clone(o), false, nil
}

func (s *Store) Insert(_ context.Context, o orders.Order) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byKey(o.UserID, o.ExternalID); ok {
		return prev, true, nil
	}
	s.insert(o)
	return clone(o), false, nil
}

func (s *Store) Get(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order not found")
	}
	return clone(o), nil
}

func (s *Store) PaymentContext(_ context.Context, id string) (orders.PaymentContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return orders.PaymentContext{}, apperr.NotFound("order not found")
	}
	u := s.users[o.UserID]
	return orders.PaymentContext{
		Order:        clone(o),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		BusinessName: s.businesses[o.BusinessID],
	}, nil
}

func (s *Store) Reconcile(_ context.Context, id string, decide orders.DecideFunc) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, false, apperr.NotFound("order not found")
	}
	t, err := decide(clone(o))
	if err != nil {
		return orders.Order{}, false, err
	}
	if t == nil {
		return clone(o), false, nil
	}
	date := t.PaymentDate
	o.PaymentStatus, o.OrderStatus, o.PaymentDate, o.UpdatedAt = t.PaymentStatus, t.OrderStatus, &date, date
	s.orders[id] = o
	return clone(o), true, nil
}

func (s *Store) byKey(userID, key string) (orders.Order, bool) {
	if key == "" {
		return orders.Order{}, false
	}
	id, ok := s.keys[userID+"\x00"+key]
	if !ok {
		return orders.Order{}, false
	}
	return clone(s.orders[id]), true
}

func (s *Store) insert(o orders.Order) {
	s.orders[o.ID] = clone(o)
	if o.ExternalID != "" {
		s.keys[o.UserID+"\x00"+o.ExternalID] = o.ID
	}
}

func clone(o orders.Order) orders.Order {
	o.Items = append([]orders.Item(nil), o.Items...)
	if o.PaymentDate != nil {
		d := *o.PaymentDate
		o.PaymentDate = &d
	}
	return o
}
