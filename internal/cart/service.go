package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"boutique/internal/models"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	GetCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	// AddItem increments the line for productID, creating the line and the
	// cart as needed.
	AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error
	SetItemQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) error
	DeleteCart(ctx context.Context, userID primitive.ObjectID) error
}

// Products resolves live, non-deleted products.
type Products interface {
	FindActive(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error)
}

type Service struct {
	repo     Repository
	cache    Cache
	products Products
	sfg      singleflight.Group
}

func NewService(repo Repository, cache Cache, products Products) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{repo: repo, cache: cache, products: products}
}

// Line is a cart entry with the current catalog data. Prices are always
// read from the product, never from the cart.
type Line struct {
	ProductID     primitive.ObjectID `json:"productId"`
	Name          string             `json:"name"`
	Thumbnail     string             `json:"thumbnail,omitempty"`
	Price         float64            `json:"price"`
	OriginalPrice float64            `json:"originalPrice"`
	IsOnSale      bool               `json:"isOnSale"`
	Stock         int                `json:"stock"`
	Quantity      int                `json:"quantity"`
	LineTotal     float64            `json:"lineTotal"`
	Available     bool               `json:"available"`
}

type View struct {
	ID        primitive.ObjectID `json:"id"`
	UserID    primitive.ObjectID `json:"userId"`
	Items     []Line             `json:"items"`
	ItemCount int                `json:"itemCount"`
	Subtotal  float64            `json:"subtotal"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// cart is the read-through path. Concurrent misses for one user share a
// single repository read. A read that raced an Invalidate is returned but
// not cached.
func (s *Service) cart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	v, err, _ := s.sfg.Do(userID.Hex(), func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("[CART] [WARN] cache get: %v", err)
		}

		version, err := s.cache.Version(ctx, userID)
		if err != nil {
			log.Printf("[CART] [WARN] cache version: %v", err)
			return s.repo.GetCart(ctx, userID)
		}
		stored, err := s.repo.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		err = s.cache.Set(ctx, userID, stored, version)
		if err != nil && !errors.Is(err, ErrStaleCart) {
			log.Printf("[CART] [WARN] cache set: %v", err)
		}
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Cart), nil
}

// GetCart returns the cart with product details and an indicative subtotal.
// Lines whose product disappeared are reported unavailable.
func (s *Service) GetCart(ctx context.Context, userID primitive.ObjectID) (*View, error) {
	c, err := s.cart(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productIndex(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &View{ID: c.ID, UserID: c.UserID, Items: make([]Line, 0, len(c.Items)), UpdatedAt: c.UpdatedAt}
	subtotal := decimal.Zero
	for _, item := range c.Items {
		line := Line{ProductID: item.ProductID, Quantity: item.Quantity}
		if p, ok := products[item.ProductID]; ok {
			price := decimal.NewFromFloat(p.EffectivePrice()).Round(2)
			total := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			line.Name = p.Name
			line.Thumbnail = p.Thumbnail
			line.Price = price.InexactFloat64()
			line.OriginalPrice = p.Price
			line.IsOnSale = models.IsProductOnSale(p.Price, p.SaleEnabled, p.SalePrice)
			line.Stock = p.Stock
			line.LineTotal = total.InexactFloat64()
			line.Available = p.Stock >= item.Quantity
			subtotal = subtotal.Add(total)
		}
		view.ItemCount += item.Quantity
		view.Items = append(view.Items, line)
	}
	view.Subtotal = subtotal.Round(2).InexactFloat64()
	return view, nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return err
	}

	existing := 0
	if c, err := s.cart(ctx, userID); err == nil {
		for _, item := range c.Items {
			if item.ProductID == productID {
				existing = item.Quantity
			}
		}
	} else if !errors.Is(err, ErrCartNotFound) {
		return err
	}
	if existing+quantity > product.Stock {
		return fmt.Errorf("%w: only %d left", ErrInsufficientStock, product.Stock)
	}

	if err := s.repo.AddItem(ctx, userID, productID, quantity); err != nil {
		log.Printf("[CART] [ERROR] add item: %v", err)
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return err
	}
	if quantity > product.Stock {
		return fmt.Errorf("%w: only %d left", ErrInsufficientStock, product.Stock)
	}

	if err := s.repo.SetItemQuantity(ctx, userID, productID, quantity); err != nil {
		log.Printf("[CART] [ERROR] update quantity: %v", err)
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// RemoveItem drops the line. With one set it decrements the line by a
// single unit and removes it once it reaches zero.
func (s *Service) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID, one bool) error {
	var err error
	if one {
		err = s.decrement(ctx, userID, productID)
	} else {
		err = s.repo.RemoveItem(ctx, userID, productID)
	}
	if err != nil {
		log.Printf("[CART] [ERROR] remove item: %v", err)
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

func (s *Service) decrement(ctx context.Context, userID, productID primitive.ObjectID) error {
	c, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range c.Items {
		if item.ProductID != productID {
			continue
		}
		if item.Quantity > 1 {
			return s.repo.SetItemQuantity(ctx, userID, productID, item.Quantity-1)
		}
		return s.repo.RemoveItem(ctx, userID, productID)
	}
	return ErrItemNotFound
}

func (s *Service) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	if err := s.repo.DeleteCart(ctx, userID); err != nil {
		log.Printf("[CART] [ERROR] clear cart: %v", err)
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached cart. Failures are logged; the entry still
// expires with its TTL.
func (s *Service) Invalidate(ctx context.Context, userID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("[CART] [WARN] cache invalidate: %v", err)
	}
}

func (s *Service) product(ctx context.Context, productID primitive.ObjectID) (*models.Product, error) {
	products, err := s.productIndex(ctx, []primitive.ObjectID{productID})
	if err != nil {
		return nil, err
	}
	p, ok := products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (s *Service) productIndex(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	index := make(map[primitive.ObjectID]models.Product, len(ids))
	if len(ids) == 0 {
		return index, nil
	}
	products, err := s.products.FindActive(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, p := range products {
		index[p.ID] = p
	}
	return index, nil
}
