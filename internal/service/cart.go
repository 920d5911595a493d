package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

type cartService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewCartService creates a new CartService instance
func NewCartService(store repository.Store, logger *slog.Logger) domain.CartService {
	if logger == nil {
		logger = slog.Default()
	}
	return &cartService{
		store:  store,
		logger: logger.With("service", "cart"),
	}
}

// AddItem adds a product to the cart, creating the cart on first use.
// The stock check here is advisory; the binding check is the reservation
// made at checkout.
func (s *cartService) AddItem(ctx context.Context, ref domain.CartRef, productID uuid.UUID, quantity int) (*domain.CartSummary, error) {
	const op = "cart.add"
	if quantity < 1 || quantity > math.MaxInt32 {
		return nil, domain.ErrInvalidQuantity
	}

	var cartID uuid.UUID
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cart, err := s.resolveCart(ctx, q, ref, true)
		if err != nil {
			return err
		}
		// Same lock checkout takes first, so adds serialise with each other
		// and with a checkout clearing the cart.
		cart, err = q.LockCart(ctx, cart.ID)
		if repository.IsNotFound(err) {
			return domain.ErrConcurrentModification.WithDetail(op, "Cart was removed by a concurrent request, please retry")
		}
		if err != nil {
			return err
		}
		cartID = cart.ID

		product, err := q.GetProduct(ctx, productID)
		if repository.IsNotFound(err) || (err == nil && !product.IsActive) {
			return domain.ErrProductNotFound
		}
		if err != nil {
			return err
		}

		existing, err := q.GetCartItemByProduct(ctx, repository.GetCartItemByProductParams{
			CartID:    cart.ID,
			ProductID: productID,
		})
		found := err == nil
		if err != nil && !repository.IsNotFound(err) {
			return err
		}

		newQty := quantity
		if found {
			newQty += int(existing.Quantity)
		}
		if newQty > int(product.Stock) {
			return outOfStock(op, product, newQty)
		}

		if found {
			err = q.SetCartItemQuantity(ctx, repository.SetCartItemQuantityParams{ID: existing.ID, Quantity: int32(newQty)})
		} else {
			_, err = q.InsertCartItem(ctx, repository.InsertCartItemParams{
				CartID:         cart.ID,
				ProductID:      productID,
				Quantity:       int32(newQty),
				UnitPriceCents: product.PriceCents,
			})
		}
		if err != nil {
			return err
		}

		_, err = q.TouchCart(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to add item to cart")
	}

	s.countMutation("add", ref)
	return s.summary(ctx, cartID)
}

// UpdateQuantity sets a line's quantity. Removing a line is RemoveItem's job.
func (s *cartService) UpdateQuantity(ctx context.Context, ref domain.CartRef, itemID uuid.UUID, quantity int) (*domain.CartSummary, error) {
	const op = "cart.update"
	if quantity < 1 || quantity > math.MaxInt32 {
		return nil, domain.ErrInvalidQuantity
	}

	var cartID uuid.UUID
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cart, item, err := s.lockedItem(ctx, q, ref, itemID)
		if err != nil {
			return err
		}
		cartID = cart.ID

		product, err := q.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if !product.IsActive || quantity > int(product.Stock) {
			return outOfStock(op, product, quantity)
		}

		if err := q.SetCartItemQuantity(ctx, repository.SetCartItemQuantityParams{ID: item.ID, Quantity: int32(quantity)}); err != nil {
			return err
		}
		_, err = q.TouchCart(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to update cart item")
	}

	s.countMutation("update", ref)
	return s.summary(ctx, cartID)
}

func (s *cartService) RemoveItem(ctx context.Context, ref domain.CartRef, itemID uuid.UUID) (*domain.CartSummary, error) {
	const op = "cart.remove"

	var cartID uuid.UUID
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cart, item, err := s.lockedItem(ctx, q, ref, itemID)
		if err != nil {
			return err
		}
		cartID = cart.ID

		if err := q.DeleteCartItem(ctx, item.ID); err != nil {
			return err
		}
		_, err = q.TouchCart(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to remove cart item")
	}

	s.countMutation("remove", ref)
	return s.summary(ctx, cartID)
}

// Summary returns an empty summary when the owner has no cart yet.
func (s *cartService) Summary(ctx context.Context, ref domain.CartRef) (*domain.CartSummary, error) {
	cart, err := s.resolveCart(ctx, s.store, ref, false)
	if errors.Is(err, domain.ErrCartNotFound) {
		return &domain.CartSummary{Cart: domain.Cart{UserID: ref.UserID, GuestToken: ref.GuestToken}}, nil
	}
	if err != nil {
		return nil, passThrough(err, "cart.summary", "failed to load cart")
	}
	return s.summary(ctx, cart.ID)
}

// Merge folds a guest cart into the user's cart. Lines for the same product
// are summed and capped at current stock, but never below what the user
// already had; guest-only lines move over capped at stock. The guest cart is
// deleted, so a second call finds nothing and is a no-op.
func (s *cartService) Merge(ctx context.Context, guestToken string, userID uuid.UUID) (*domain.MergeResult, error) {
	const op = "cart.merge"
	if userID == uuid.Nil {
		return nil, domain.ErrMissingCartRef
	}

	result := &domain.MergeResult{}
	var cartID uuid.UUID

	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		userCart, err := q.GetCartByUserID(ctx, userID)
		hasUserCart := err == nil
		if err != nil && !repository.IsNotFound(err) {
			return err
		}
		if hasUserCart {
			cartID = userCart.ID
		}

		if guestToken == "" {
			return nil
		}
		guest, err := q.GetCartByGuestToken(ctx, guestToken)
		if repository.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		// Lock guest first, then user. Merge is the only path that holds both.
		if guest, err = q.LockCart(ctx, guest.ID); err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return err
		}

		guestItems, err := q.ListCartItems(ctx, guest.ID)
		if err != nil {
			return err
		}

		if !hasUserCart {
			// Adopt the guest cart, capping each line at stock.
			if _, err := q.AssignCartToUser(ctx, repository.AssignCartToUserParams{ID: guest.ID, UserID: userID}); err != nil {
				return err
			}
			cartID = guest.ID
			for _, item := range guestItems {
				if err := s.capLine(ctx, q, result, item); err != nil {
					return err
				}
			}
			result.Merged = true
			result.MovedLines = len(guestItems)
			return nil
		}

		if _, err := q.LockCart(ctx, userCart.ID); err != nil {
			return err
		}
		userItems, err := q.ListCartItems(ctx, userCart.ID)
		if err != nil {
			return err
		}
		byProduct := make(map[uuid.UUID]repository.ListCartItemsRow, len(userItems))
		for _, item := range userItems {
			byProduct[item.ProductID] = item
		}

		for _, g := range guestItems {
			stock := availableStock(g)
			if u, ok := byProduct[g.ProductID]; ok {
				existing := int(u.Quantity)
				want := existing + int(g.Quantity)
				newQty := min(want, max(stock, existing))
				if newQty != existing {
					if err := q.SetCartItemQuantity(ctx, repository.SetCartItemQuantityParams{ID: u.ID, Quantity: int32(newQty)}); err != nil {
						return err
					}
				}
				result.SummedLines++
				addDropped(result, g, want-newQty)
				continue
			}

			qty := min(int(g.Quantity), stock)
			addDropped(result, g, int(g.Quantity)-qty)
			if qty <= 0 {
				continue
			}
			if _, err := q.InsertCartItem(ctx, repository.InsertCartItemParams{
				CartID:         userCart.ID,
				ProductID:      g.ProductID,
				Quantity:       int32(qty),
				UnitPriceCents: g.UnitPriceCents,
			}); err != nil {
				return err
			}
			result.MovedLines++
		}

		if err := q.DeleteCart(ctx, guest.ID); err != nil {
			return err
		}
		if _, err := q.TouchCart(ctx, userCart.ID); err != nil {
			return err
		}
		result.Merged = true
		return nil
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to merge carts")
	}

	if cartID == uuid.Nil {
		result.Summary = &domain.CartSummary{Cart: domain.Cart{UserID: userID}}
	} else {
		if result.Summary, err = s.summary(ctx, cartID); err != nil {
			return nil, err
		}
	}

	s.recordMerge(userID, result)
	return result, nil
}

// capLine trims an adopted guest line to available stock, deleting it when
// nothing is available.
func (s *cartService) capLine(ctx context.Context, q repository.Querier, result *domain.MergeResult, item repository.ListCartItemsRow) error {
	stock := availableStock(item)
	if int(item.Quantity) <= stock {
		return nil
	}
	addDropped(result, item, int(item.Quantity)-stock)
	if stock <= 0 {
		return q.DeleteCartItem(ctx, item.ID)
	}
	return q.SetCartItemQuantity(ctx, repository.SetCartItemQuantityParams{ID: item.ID, Quantity: int32(stock)})
}

func (s *cartService) recordMerge(userID uuid.UUID, result *domain.MergeResult) {
	outcome := "noop"
	switch {
	case result.Partial():
		outcome = "partial"
	case result.Merged:
		outcome = "merged"
	}

	dropped := 0
	for _, d := range result.Dropped {
		dropped += d.Quantity
	}

	if telemetry.Business != nil {
		telemetry.Business.CartMerges.WithLabelValues(outcome).Inc()
		telemetry.Business.CartMergeDropped.Add(float64(dropped))
	}
	if result.Merged {
		s.logger.Info("guest cart merged",
			"user_id", userID,
			"moved_lines", result.MovedLines,
			"summed_lines", result.SummedLines,
			"dropped_units", dropped,
		)
	}
}

// resolveCart finds the cart for ref, creating it when create is set.
func (s *cartService) resolveCart(ctx context.Context, q repository.Querier, ref domain.CartRef, create bool) (repository.Cart, error) {
	if ref.IsZero() {
		return repository.Cart{}, domain.ErrMissingCartRef
	}

	lookup := func() (repository.Cart, error) {
		if !ref.IsGuest() {
			return q.GetCartByUserID(ctx, ref.UserID)
		}
		return q.GetCartByGuestToken(ctx, ref.GuestToken)
	}

	cart, err := lookup()
	if err == nil {
		return cart, nil
	}
	if !repository.IsNotFound(err) {
		return repository.Cart{}, err
	}
	if !create {
		return repository.Cart{}, domain.ErrCartNotFound
	}

	params := repository.CreateCartParams{}
	if ref.IsGuest() {
		params.GuestToken = repository.NullText(ref.GuestToken)
	} else {
		params.UserID = repository.NullUUID(ref.UserID)
	}
	cart, err = q.CreateCart(ctx, params)
	if repository.IsUniqueViolation(err) {
		// Another request created the cart first; the client retries.
		return repository.Cart{}, domain.ErrConcurrentModification.WithDetail("cart.create", "Cart was created by a concurrent request, please retry")
	}
	return cart, err
}

// lockedItem resolves and locks the caller's cart and loads one of its lines.
// A line from someone else's cart is reported as not found.
func (s *cartService) lockedItem(ctx context.Context, q repository.Querier, ref domain.CartRef, itemID uuid.UUID) (repository.Cart, repository.CartItem, error) {
	cart, err := s.resolveCart(ctx, q, ref, false)
	if err != nil {
		return repository.Cart{}, repository.CartItem{}, err
	}
	if cart, err = q.LockCart(ctx, cart.ID); err != nil {
		return repository.Cart{}, repository.CartItem{}, err
	}

	item, err := q.GetCartItem(ctx, itemID)
	if repository.IsNotFound(err) || (err == nil && item.CartID != cart.ID) {
		return repository.Cart{}, repository.CartItem{}, domain.ErrCartItemNotFound
	}
	if err != nil {
		return repository.Cart{}, repository.CartItem{}, err
	}
	return cart, item, nil
}

func (s *cartService) summary(ctx context.Context, cartID uuid.UUID) (*domain.CartSummary, error) {
	const op = "cart.summary"

	cart, err := s.store.GetCartByID(ctx, cartID)
	if repository.IsNotFound(err) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load cart")
	}
	rows, err := s.store.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load cart items")
	}
	return buildSummary(cart, rows), nil
}

func buildSummary(cart repository.Cart, rows []repository.ListCartItemsRow) *domain.CartSummary {
	summary := &domain.CartSummary{
		Cart:  cartFromRow(cart),
		Items: make([]domain.CartItem, 0, len(rows)),
	}
	for _, row := range rows {
		line := int64(row.Quantity) * row.UnitPriceCents
		summary.Items = append(summary.Items, domain.CartItem{
			ID:             row.ID,
			ProductID:      row.ProductID,
			ProductName:    row.ProductName,
			Quantity:       int(row.Quantity),
			UnitPriceCents: row.UnitPriceCents,
			LineTotalCents: line,
			Available:      availableStock(row),
		})
		summary.SubtotalCents += line
		summary.ItemCount += int(row.Quantity)
	}
	return summary
}

func cartFromRow(row repository.Cart) domain.Cart {
	return domain.Cart{
		ID:         row.ID,
		UserID:     repository.UUIDFrom(row.UserID),
		GuestToken: row.GuestToken.String,
		Version:    row.Version,
		UpdatedAt:  row.UpdatedAt,
	}
}

func availableStock(row repository.ListCartItemsRow) int {
	if !row.ProductActive || row.ProductStock < 0 {
		return 0
	}
	return int(row.ProductStock)
}

func addDropped(result *domain.MergeResult, row repository.ListCartItemsRow, qty int) {
	if qty <= 0 {
		return
	}
	result.Dropped = append(result.Dropped, domain.DroppedUnits{
		ProductID:   row.ProductID,
		ProductName: row.ProductName,
		Quantity:    qty,
	})
}

func outOfStock(op string, product repository.Product, requested int) error {
	if !product.IsActive {
		return domain.ErrOutOfStock.WithDetail(op, fmt.Sprintf("%s is no longer available", product.Name))
	}
	return domain.ErrOutOfStock.WithDetail(op, fmt.Sprintf(
		"Only %d of %s available, %d requested", product.Stock, product.Name, requested,
	))
}

func (s *cartService) countMutation(op string, ref domain.CartRef) {
	if telemetry.Business == nil {
		return
	}
	owner := "user"
	if ref.IsGuest() {
		owner = "guest"
	}
	telemetry.Business.CartMutations.WithLabelValues(op, owner).Inc()
}
