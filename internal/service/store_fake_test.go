package service

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// memState is the whole fake database. It is copied before each transaction
// and restored when the transaction fails.
type memState struct {
	base      time.Time
	seq       int64
	creditSeq int64

	users          map[uuid.UUID]repository.User
	products       map[uuid.UUID]repository.Product
	carts          map[uuid.UUID]repository.Cart
	cartItems      map[uuid.UUID]repository.CartItem
	attempts       map[string]repository.CheckoutAttempt
	coupons        map[uuid.UUID]repository.Coupon
	couponUsages   []repository.CouponUsage
	creditTxs      []repository.CreditTransaction
	orders         map[uuid.UUID]repository.Order
	orderItems     []repository.OrderItem
	paymentMethods map[uuid.UUID]repository.PaymentMethod
}

func newMemState() *memState {
	return &memState{
		base:           time.Now(),
		users:          map[uuid.UUID]repository.User{},
		products:       map[uuid.UUID]repository.Product{},
		carts:          map[uuid.UUID]repository.Cart{},
		cartItems:      map[uuid.UUID]repository.CartItem{},
		attempts:       map[string]repository.CheckoutAttempt{},
		coupons:        map[uuid.UUID]repository.Coupon{},
		orders:         map[uuid.UUID]repository.Order{},
		paymentMethods: map[uuid.UUID]repository.PaymentMethod{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memState) clone() *memState {
	return &memState{
		base:           st.base,
		seq:            st.seq,
		creditSeq:      st.creditSeq,
		users:          cloneMap(st.users),
		products:       cloneMap(st.products),
		carts:          cloneMap(st.carts),
		cartItems:      cloneMap(st.cartItems),
		attempts:       cloneMap(st.attempts),
		coupons:        cloneMap(st.coupons),
		couponUsages:   slices.Clone(st.couponUsages),
		creditTxs:      slices.Clone(st.creditTxs),
		orders:         cloneMap(st.orders),
		orderItems:     slices.Clone(st.orderItems),
		paymentMethods: cloneMap(st.paymentMethods),
	}
}

// tick returns a strictly increasing timestamp so ordering by created_at is stable.
func (st *memState) tick() time.Time {
	st.seq++
	return st.base.Add(time.Duration(st.seq) * time.Microsecond)
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

var uniqueViolation = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

// memQueries implements repository.Querier over memState. Outside a
// transaction every call takes the store lock; inside one the lock is
// already held by ExecTx.
type memQueries struct {
	st *memState
	mu sync.Locker

	// failOn makes the named method return the error, to exercise rollback.
	failOn map[string]error

	// txNow is fixed for the life of a transaction, like now() in Postgres.
	txNow time.Time

	// trace, when set, records every method called in order.
	trace *[]string
}

func (q *memQueries) now() time.Time {
	if !q.txNow.IsZero() {
		return q.txNow
	}
	return q.st.tick()
}

func (q *memQueries) enter(method string) (func(), error) {
	q.mu.Lock()
	if q.trace != nil {
		*q.trace = append(*q.trace, method)
	}
	if err := q.failOn[method]; err != nil {
		q.mu.Unlock()
		return func() {}, err
	}
	return q.mu.Unlock, nil
}

// memStore is a repository.Store that serialises transactions.
type memStore struct {
	*memQueries
	txMu sync.Mutex
}

func newMemStore() *memStore {
	s := &memStore{}
	s.memQueries = &memQueries{st: newMemState(), mu: &s.txMu, failOn: map[string]error{}}
	return s
}

func (s *memStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	err := fn(&memQueries{st: s.st, mu: noLock{}, failOn: s.failOn, txNow: s.st.tick(), trace: s.trace})
	if err != nil {
		*s.st = *snapshot
	}
	return err
}

var _ repository.Store = (*memStore)(nil)

// --- seeding and inspection helpers ---

func (s *memStore) addUser(credits int64) uuid.UUID {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	id := uuid.New()
	now := s.st.tick()
	s.st.users[id] = repository.User{ID: id, Email: id.String()[:8] + "@example.com", Credits: credits, CreatedAt: now, UpdatedAt: now}
	if credits != 0 {
		s.st.creditSeq++
		s.st.creditTxs = append(s.st.creditTxs, repository.CreditTransaction{
			ID: uuid.New(), UserID: id, Type: "admin_add", Amount: credits, Note: "opening balance", CreatedAt: now, Seq: s.st.creditSeq,
		})
	}
	return id
}

func (s *memStore) addProduct(name string, priceCents int64, stock int32) uuid.UUID {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	id := uuid.New()
	now := s.st.tick()
	s.st.products[id] = repository.Product{
		ID: id, Name: name, Slug: name, PriceCents: priceCents, Stock: stock, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	return id
}

func (s *memStore) addPaymentMethod(name, kind string) uuid.UUID {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	id := uuid.New()
	provider := ""
	if kind == "provider" {
		provider = "stripe"
	}
	s.st.paymentMethods[id] = repository.PaymentMethod{
		ID: id, Name: name, Kind: kind, Provider: provider, IsActive: true, SortOrder: int32(len(s.st.paymentMethods)), CreatedAt: s.st.tick(),
	}
	return id
}

func (s *memStore) addCoupon(c repository.Coupon) uuid.UUID {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = s.st.tick()
	s.st.coupons[c.ID] = c
	return c.ID
}

func (s *memStore) update(fn func(st *memState)) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	fn(s.st)
}

func (s *memStore) product(id uuid.UUID) repository.Product {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.st.products[id]
}

func (s *memStore) user(id uuid.UUID) repository.User {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.st.users[id]
}

func (s *memStore) coupon(id uuid.UUID) repository.Coupon {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.st.coupons[id]
}

func (s *memStore) creditTransactions(userID uuid.UUID) []repository.CreditTransaction {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var out []repository.CreditTransaction
	for _, tx := range s.st.creditTxs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

func (s *memStore) orderCount() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return len(s.st.orders)
}

func (s *memStore) couponUsageCount() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return len(s.st.couponUsages)
}

// --- credits ---

func (q *memQueries) GetUser(ctx context.Context, id uuid.UUID) (repository.User, error) {
	done, err := q.enter("GetUser")
	defer done()
	if err != nil {
		return repository.User{}, err
	}
	u, ok := q.st.users[id]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (q *memQueries) ApplyCreditDelta(ctx context.Context, arg repository.ApplyCreditDeltaParams) (int64, error) {
	done, err := q.enter("ApplyCreditDelta")
	defer done()
	if err != nil {
		return 0, err
	}
	u, ok := q.st.users[arg.ID]
	if !ok || u.Credits+arg.Delta < 0 {
		return 0, pgx.ErrNoRows
	}
	u.Credits += arg.Delta
	u.UpdatedAt = q.st.tick()
	q.st.users[arg.ID] = u
	return u.Credits, nil
}

func (q *memQueries) InsertCreditTransaction(ctx context.Context, arg repository.InsertCreditTransactionParams) (repository.CreditTransaction, error) {
	done, err := q.enter("InsertCreditTransaction")
	defer done()
	if err != nil {
		return repository.CreditTransaction{}, err
	}
	q.st.creditSeq++
	tx := repository.CreditTransaction{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		Type:      arg.Type,
		Amount:    arg.Amount,
		Note:      arg.Note,
		OrderID:   arg.OrderID,
		CreatedAt: q.now(),
		Seq:       q.st.creditSeq,
	}
	q.st.creditTxs = append(q.st.creditTxs, tx)
	return tx, nil
}

func (q *memQueries) ListCreditTransactions(ctx context.Context, arg repository.ListCreditTransactionsParams) ([]repository.CreditTransaction, error) {
	done, err := q.enter("ListCreditTransactions")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []repository.CreditTransaction
	for _, tx := range q.st.creditTxs {
		if tx.UserID == arg.UserID {
			out = append(out, tx)
		}
	}
	slices.SortFunc(out, func(a, b repository.CreditTransaction) int {
		return cmp.Compare(b.Seq, a.Seq)
	})
	if len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (q *memQueries) SumCreditTransactions(ctx context.Context, userID uuid.UUID) (int64, error) {
	done, err := q.enter("SumCreditTransactions")
	defer done()
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, tx := range q.st.creditTxs {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

// --- products ---

func (q *memQueries) GetProduct(ctx context.Context, id uuid.UUID) (repository.Product, error) {
	done, err := q.enter("GetProduct")
	defer done()
	if err != nil {
		return repository.Product{}, err
	}
	p, ok := q.st.products[id]
	if !ok {
		return repository.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (q *memQueries) ReserveStock(ctx context.Context, arg repository.ReserveStockParams) (int32, error) {
	done, err := q.enter("ReserveStock")
	defer done()
	if err != nil {
		return 0, err
	}
	p, ok := q.st.products[arg.ID]
	if !ok || !p.IsActive || p.Stock < arg.Quantity {
		return 0, pgx.ErrNoRows
	}
	p.Stock -= arg.Quantity
	q.st.products[arg.ID] = p
	return p.Stock, nil
}

func (q *memQueries) ReleaseStock(ctx context.Context, arg repository.ReleaseStockParams) (int32, error) {
	done, err := q.enter("ReleaseStock")
	defer done()
	if err != nil {
		return 0, err
	}
	p, ok := q.st.products[arg.ID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	p.Stock += arg.Quantity
	q.st.products[arg.ID] = p
	return p.Stock, nil
}

// --- carts ---

func (q *memQueries) findCart(match func(repository.Cart) bool) (repository.Cart, error) {
	for _, c := range q.st.carts {
		if match(c) {
			return c, nil
		}
	}
	return repository.Cart{}, pgx.ErrNoRows
}

func (q *memQueries) GetCartByID(ctx context.Context, id uuid.UUID) (repository.Cart, error) {
	done, err := q.enter("GetCartByID")
	defer done()
	if err != nil {
		return repository.Cart{}, err
	}
	c, ok := q.st.carts[id]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (q *memQueries) LockCart(ctx context.Context, id uuid.UUID) (repository.Cart, error) {
	done, err := q.enter("LockCart")
	defer done()
	if err != nil {
		return repository.Cart{}, err
	}
	c, ok := q.st.carts[id]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (q *memQueries) GetCartByUserID(ctx context.Context, userID uuid.UUID) (repository.Cart, error) {
	done, err := q.enter("GetCartByUserID")
	defer done()
	if err != nil {
		return repository.Cart{}, err
	}
	return q.findCart(func(c repository.Cart) bool {
		return c.UserID.Valid && uuid.UUID(c.UserID.Bytes) == userID
	})
}

func (q *memQueries) GetCartByGuestToken(ctx context.Context, guestToken string) (repository.Cart, error) {
	done, err := q.enter("GetCartByGuestToken")
	defer done()
	if err != nil {
		return repository.Cart{}, err
	}
	return q.findCart(func(c repository.Cart) bool {
		return c.GuestToken.Valid && c.GuestToken.String == guestToken
	})
}

func (q *memQueries) CreateCart(ctx context.Context, arg repository.CreateCartParams) (repository.Cart, error) {
	done, err := q.enter("CreateCart")
	defer done()
	if err != nil {
		return repository.Cart{}, err
	}
	for _, c := range q.st.carts {
		if arg.UserID.Valid && c.UserID == arg.UserID {
			return repository.Cart{}, uniqueViolation
		}
		if arg.GuestToken.Valid && c.GuestToken == arg.GuestToken {
			return repository.Cart{}, uniqueViolation
		}
	}
	now := q.st.tick()
	c := repository.Cart{ID: uuid.New(), UserID: arg.UserID, GuestToken: arg.GuestToken, Version: 1, CreatedAt: now, UpdatedAt: now}
	q.st.carts[c.ID] = c
	return c, nil
}

func (q *memQueries) TouchCart(ctx context.Context, id uuid.UUID) (int64, error) {
	done, err := q.enter("TouchCart")
	defer done()
	if err != nil {
		return 0, err
	}
	c, ok := q.st.carts[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	c.Version++
	c.UpdatedAt = q.st.tick()
	q.st.carts[id] = c
	return c.Version, nil
}

func (q *memQueries) AssignCartToUser(ctx context.Context, arg repository.AssignCartToUserParams) (repository.Cart, error) {
	done, err := q.enter("AssignCartToUser")
	defer done()
	if err != nil {
		return repository.Cart{}, err
	}
	c, ok := q.st.carts[arg.ID]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	c.UserID = repository.NullUUID(arg.UserID)
	c.GuestToken = pgtype.Text{}
	c.Version++
	c.UpdatedAt = q.st.tick()
	q.st.carts[c.ID] = c
	return c, nil
}

func (q *memQueries) DeleteCart(ctx context.Context, id uuid.UUID) error {
	done, err := q.enter("DeleteCart")
	defer done()
	if err != nil {
		return err
	}
	delete(q.st.carts, id)
	for itemID, item := range q.st.cartItems {
		if item.CartID == id {
			delete(q.st.cartItems, itemID)
		}
	}
	return nil
}

func (q *memQueries) DeleteStaleGuestCarts(ctx context.Context, before time.Time) (int64, error) {
	done, err := q.enter("DeleteStaleGuestCarts")
	defer done()
	if err != nil {
		return 0, err
	}
	var n int64
	for id, c := range q.st.carts {
		if c.UserID.Valid || !c.UpdatedAt.Before(before) {
			continue
		}
		delete(q.st.carts, id)
		for itemID, item := range q.st.cartItems {
			if item.CartID == id {
				delete(q.st.cartItems, itemID)
			}
		}
		n++
	}
	return n, nil
}

func (q *memQueries) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]repository.ListCartItemsRow, error) {
	done, err := q.enter("ListCartItems")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []repository.ListCartItemsRow
	for _, item := range q.st.cartItems {
		if item.CartID != cartID {
			continue
		}
		p := q.st.products[item.ProductID]
		out = append(out, repository.ListCartItemsRow{
			ID:             item.ID,
			CartID:         item.CartID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			CreatedAt:      item.CreatedAt,
			ProductName:    p.Name,
			ProductStock:   p.Stock,
			ProductActive:  p.IsActive,
		})
	}
	slices.SortFunc(out, func(a, b repository.ListCartItemsRow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

func (q *memQueries) GetCartItem(ctx context.Context, id uuid.UUID) (repository.CartItem, error) {
	done, err := q.enter("GetCartItem")
	defer done()
	if err != nil {
		return repository.CartItem{}, err
	}
	item, ok := q.st.cartItems[id]
	if !ok {
		return repository.CartItem{}, pgx.ErrNoRows
	}
	return item, nil
}

func (q *memQueries) GetCartItemByProduct(ctx context.Context, arg repository.GetCartItemByProductParams) (repository.CartItem, error) {
	done, err := q.enter("GetCartItemByProduct")
	defer done()
	if err != nil {
		return repository.CartItem{}, err
	}
	for _, item := range q.st.cartItems {
		if item.CartID == arg.CartID && item.ProductID == arg.ProductID {
			return item, nil
		}
	}
	return repository.CartItem{}, pgx.ErrNoRows
}

func (q *memQueries) InsertCartItem(ctx context.Context, arg repository.InsertCartItemParams) (repository.CartItem, error) {
	done, err := q.enter("InsertCartItem")
	defer done()
	if err != nil {
		return repository.CartItem{}, err
	}
	for _, item := range q.st.cartItems {
		if item.CartID == arg.CartID && item.ProductID == arg.ProductID {
			return repository.CartItem{}, uniqueViolation
		}
	}
	if arg.Quantity < 1 {
		return repository.CartItem{}, &pgconn.PgError{Code: "23514", Message: "quantity check"}
	}
	item := repository.CartItem{
		ID:             uuid.New(),
		CartID:         arg.CartID,
		ProductID:      arg.ProductID,
		Quantity:       arg.Quantity,
		UnitPriceCents: arg.UnitPriceCents,
		CreatedAt:      q.st.tick(),
	}
	q.st.cartItems[item.ID] = item
	return item, nil
}

func (q *memQueries) SetCartItemQuantity(ctx context.Context, arg repository.SetCartItemQuantityParams) error {
	done, err := q.enter("SetCartItemQuantity")
	defer done()
	if err != nil {
		return err
	}
	item, ok := q.st.cartItems[arg.ID]
	if !ok {
		return nil
	}
	if arg.Quantity < 1 {
		return &pgconn.PgError{Code: "23514", Message: "quantity check"}
	}
	item.Quantity = arg.Quantity
	q.st.cartItems[arg.ID] = item
	return nil
}

func (q *memQueries) DeleteCartItem(ctx context.Context, id uuid.UUID) error {
	done, err := q.enter("DeleteCartItem")
	defer done()
	if err != nil {
		return err
	}
	delete(q.st.cartItems, id)
	return nil
}

func (q *memQueries) ClearCartItems(ctx context.Context, cartID uuid.UUID) error {
	done, err := q.enter("ClearCartItems")
	defer done()
	if err != nil {
		return err
	}
	for id, item := range q.st.cartItems {
		if item.CartID == cartID {
			delete(q.st.cartItems, id)
		}
	}
	return nil
}

// --- checkout attempts ---

func (q *memQueries) CreateCheckoutAttempt(ctx context.Context, arg repository.CreateCheckoutAttemptParams) (repository.CheckoutAttempt, error) {
	done, err := q.enter("CreateCheckoutAttempt")
	defer done()
	if err != nil {
		return repository.CheckoutAttempt{}, err
	}
	if _, ok := q.st.attempts[arg.Token]; ok {
		return repository.CheckoutAttempt{}, uniqueViolation
	}
	a := repository.CheckoutAttempt{
		Token:       arg.Token,
		UserID:      arg.UserID,
		CartID:      arg.CartID,
		CartVersion: arg.CartVersion,
		CreatedAt:   q.st.tick(),
	}
	q.st.attempts[a.Token] = a
	return a, nil
}

func (q *memQueries) GetCheckoutAttempt(ctx context.Context, token string) (repository.CheckoutAttempt, error) {
	done, err := q.enter("GetCheckoutAttempt")
	defer done()
	if err != nil {
		return repository.CheckoutAttempt{}, err
	}
	a, ok := q.st.attempts[token]
	if !ok {
		return repository.CheckoutAttempt{}, pgx.ErrNoRows
	}
	return a, nil
}

func (q *memQueries) LockCheckoutAttempt(ctx context.Context, token string) (repository.CheckoutAttempt, error) {
	done, err := q.enter("LockCheckoutAttempt")
	defer done()
	if err != nil {
		return repository.CheckoutAttempt{}, err
	}
	a, ok := q.st.attempts[token]
	if !ok {
		return repository.CheckoutAttempt{}, pgx.ErrNoRows
	}
	return a, nil
}

func (q *memQueries) CompleteCheckoutAttempt(ctx context.Context, arg repository.CompleteCheckoutAttemptParams) error {
	done, err := q.enter("CompleteCheckoutAttempt")
	defer done()
	if err != nil {
		return err
	}
	a, ok := q.st.attempts[arg.Token]
	if !ok || a.CompletedAt.Valid {
		return nil
	}
	a.OrderID = repository.NullUUID(arg.OrderID)
	a.CompletedAt = pgtype.Timestamptz{Time: q.st.tick(), Valid: true}
	q.st.attempts[arg.Token] = a
	return nil
}

// --- coupons ---

func (q *memQueries) GetCouponByCode(ctx context.Context, code string) (repository.Coupon, error) {
	done, err := q.enter("GetCouponByCode")
	defer done()
	if err != nil {
		return repository.Coupon{}, err
	}
	for _, c := range q.st.coupons {
		if c.Code == code {
			return c, nil
		}
	}
	return repository.Coupon{}, pgx.ErrNoRows
}

func (q *memQueries) CreateCoupon(ctx context.Context, arg repository.CreateCouponParams) (repository.Coupon, error) {
	done, err := q.enter("CreateCoupon")
	defer done()
	if err != nil {
		return repository.Coupon{}, err
	}
	for _, c := range q.st.coupons {
		if c.Code == arg.Code {
			return repository.Coupon{}, uniqueViolation
		}
	}
	c := repository.Coupon{
		ID:        uuid.New(),
		Code:      arg.Code,
		Effect:    arg.Effect,
		Value:     arg.Value,
		MinAmount: arg.MinAmount,
		MaxUses:   arg.MaxUses,
		ExpiresAt: arg.ExpiresAt,
		IsActive:  arg.IsActive,
		CreatedAt: q.st.tick(),
	}
	q.st.coupons[c.ID] = c
	return c, nil
}

func (q *memQueries) IncrementCouponUsage(ctx context.Context, arg repository.IncrementCouponUsageParams) (int32, error) {
	done, err := q.enter("IncrementCouponUsage")
	defer done()
	if err != nil {
		return 0, err
	}
	c, ok := q.st.coupons[arg.ID]
	if !ok || !c.IsActive || !c.ExpiresAt.After(arg.Now) || c.UsedCount >= c.MaxUses {
		return 0, pgx.ErrNoRows
	}
	c.UsedCount++
	q.st.coupons[c.ID] = c
	return c.UsedCount, nil
}

func (q *memQueries) InsertCouponUsage(ctx context.Context, arg repository.InsertCouponUsageParams) (repository.CouponUsage, error) {
	done, err := q.enter("InsertCouponUsage")
	defer done()
	if err != nil {
		return repository.CouponUsage{}, err
	}
	u := repository.CouponUsage{
		ID:              uuid.New(),
		CouponID:        arg.CouponID,
		UserID:          arg.UserID,
		OrderID:         arg.OrderID,
		CreditAmount:    arg.CreditAmount,
		DiscountAmount:  arg.DiscountAmount,
		CreatedAt:       q.now(),
		CreditGrantedAt: arg.CreditGrantedAt,
	}
	q.st.couponUsages = append(q.st.couponUsages, u)
	return u, nil
}

// claimUsages stamps every usage row of the order that match accepts.
func (q *memQueries) claimUsages(orderID pgtype.UUID, match func(repository.CouponUsage) bool, stamp func(*repository.CouponUsage)) []repository.OrderCouponUsage {
	var out []repository.OrderCouponUsage
	for i := range q.st.couponUsages {
		u := &q.st.couponUsages[i]
		if !orderID.Valid || u.OrderID != orderID || !match(*u) {
			continue
		}
		stamp(u)
		out = append(out, repository.OrderCouponUsage{
			ID:              u.ID,
			CouponID:        u.CouponID,
			Code:            q.st.coupons[u.CouponID].Code,
			UserID:          u.UserID,
			CreditAmount:    u.CreditAmount,
			CreditGrantedAt: u.CreditGrantedAt,
		})
	}
	return out
}

func (q *memQueries) GrantPendingCouponCredit(ctx context.Context, arg repository.GrantPendingCouponCreditParams) ([]repository.OrderCouponUsage, error) {
	done, err := q.enter("GrantPendingCouponCredit")
	defer done()
	if err != nil {
		return nil, err
	}
	return q.claimUsages(arg.OrderID, func(u repository.CouponUsage) bool {
		return u.CreditAmount > 0 && !u.CreditGrantedAt.Valid && !u.ReversedAt.Valid
	}, func(u *repository.CouponUsage) {
		u.CreditGrantedAt = repository.NullTime(arg.Now)
	}), nil
}

func (q *memQueries) ReverseCouponUsages(ctx context.Context, arg repository.ReverseCouponUsagesParams) ([]repository.OrderCouponUsage, error) {
	done, err := q.enter("ReverseCouponUsages")
	defer done()
	if err != nil {
		return nil, err
	}
	return q.claimUsages(arg.OrderID, func(u repository.CouponUsage) bool {
		return !u.ReversedAt.Valid
	}, func(u *repository.CouponUsage) {
		u.ReversedAt = repository.NullTime(arg.Now)
	}), nil
}

func (q *memQueries) ReleaseCouponUsage(ctx context.Context, id uuid.UUID) (int32, error) {
	done, err := q.enter("ReleaseCouponUsage")
	defer done()
	if err != nil {
		return 0, err
	}
	c, ok := q.st.coupons[id]
	if !ok || c.UsedCount <= 0 {
		return 0, pgx.ErrNoRows
	}
	c.UsedCount--
	q.st.coupons[id] = c
	return c.UsedCount, nil
}

// --- orders ---

func (q *memQueries) CreateOrder(ctx context.Context, arg repository.CreateOrderParams) (repository.Order, error) {
	done, err := q.enter("CreateOrder")
	defer done()
	if err != nil {
		return repository.Order{}, err
	}
	for _, o := range q.st.orders {
		if o.OrderNumber == arg.OrderNumber || o.ID == arg.ID {
			return repository.Order{}, uniqueViolation
		}
	}
	now := q.st.tick()
	o := repository.Order{
		ID:              arg.ID,
		OrderNumber:     arg.OrderNumber,
		UserID:          arg.UserID,
		Status:          arg.Status,
		PaymentMethodID: arg.PaymentMethodID,
		CouponID:        arg.CouponID,
		SubtotalCents:   arg.SubtotalCents,
		DiscountCents:   arg.DiscountCents,
		TotalCents:      arg.TotalCents,
		CreditPaidCents: arg.CreditPaidCents,
		Currency:        arg.Currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	q.st.orders[o.ID] = o
	return o, nil
}

func (q *memQueries) CreateOrderItem(ctx context.Context, arg repository.CreateOrderItemParams) (repository.OrderItem, error) {
	done, err := q.enter("CreateOrderItem")
	defer done()
	if err != nil {
		return repository.OrderItem{}, err
	}
	if _, ok := q.st.orders[arg.OrderID]; !ok {
		return repository.OrderItem{}, fmt.Errorf("order %s does not exist", arg.OrderID)
	}
	item := repository.OrderItem{
		ID:              uuid.New(),
		OrderID:         arg.OrderID,
		ProductID:       arg.ProductID,
		ProductName:     arg.ProductName,
		Quantity:        arg.Quantity,
		UnitPriceCents:  arg.UnitPriceCents,
		TotalPriceCents: arg.TotalPriceCents,
	}
	q.st.orderItems = append(q.st.orderItems, item)
	return item, nil
}

func (q *memQueries) GetOrder(ctx context.Context, id uuid.UUID) (repository.Order, error) {
	done, err := q.enter("GetOrder")
	defer done()
	if err != nil {
		return repository.Order{}, err
	}
	o, ok := q.st.orders[id]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (q *memQueries) LockOrder(ctx context.Context, id uuid.UUID) (repository.Order, error) {
	done, err := q.enter("LockOrder")
	defer done()
	if err != nil {
		return repository.Order{}, err
	}
	o, ok := q.st.orders[id]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (q *memQueries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]repository.OrderItem, error) {
	done, err := q.enter("ListOrderItems")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []repository.OrderItem
	for _, item := range q.st.orderItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b repository.OrderItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return out, nil
}

func (q *memQueries) ListOrdersByUser(ctx context.Context, arg repository.ListOrdersByUserParams) ([]repository.Order, error) {
	done, err := q.enter("ListOrdersByUser")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []repository.Order
	for _, o := range q.st.orders {
		if o.UserID == arg.UserID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b repository.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (q *memQueries) UpdateOrderStatus(ctx context.Context, arg repository.UpdateOrderStatusParams) (repository.Order, error) {
	done, err := q.enter("UpdateOrderStatus")
	defer done()
	if err != nil {
		return repository.Order{}, err
	}
	o, ok := q.st.orders[arg.ID]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = q.st.tick()
	q.st.orders[o.ID] = o
	return o, nil
}

func (q *memQueries) SetOrderProviderSession(ctx context.Context, arg repository.SetOrderProviderSessionParams) error {
	done, err := q.enter("SetOrderProviderSession")
	defer done()
	if err != nil {
		return err
	}
	o, ok := q.st.orders[arg.ID]
	if !ok {
		return nil
	}
	o.ProviderSessionID = arg.ProviderSessionID
	q.st.orders[o.ID] = o
	return nil
}

func (q *memQueries) ListStalePendingOrders(ctx context.Context, arg repository.ListStalePendingOrdersParams) ([]uuid.UUID, error) {
	done, err := q.enter("ListStalePendingOrders")
	defer done()
	if err != nil {
		return nil, err
	}
	var stale []repository.Order
	for _, o := range q.st.orders {
		if o.Status == "pending" && o.CreatedAt.Before(arg.Before) {
			stale = append(stale, o)
		}
	}
	slices.SortFunc(stale, func(a, b repository.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	var ids []uuid.UUID
	for _, o := range stale {
		if len(ids) == int(arg.Limit) {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// --- payment methods ---

func (q *memQueries) GetPaymentMethod(ctx context.Context, id uuid.UUID) (repository.PaymentMethod, error) {
	done, err := q.enter("GetPaymentMethod")
	defer done()
	if err != nil {
		return repository.PaymentMethod{}, err
	}
	m, ok := q.st.paymentMethods[id]
	if !ok {
		return repository.PaymentMethod{}, pgx.ErrNoRows
	}
	return m, nil
}

func (q *memQueries) ListActivePaymentMethods(ctx context.Context) ([]repository.PaymentMethod, error) {
	done, err := q.enter("ListActivePaymentMethods")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []repository.PaymentMethod
	for _, m := range q.st.paymentMethods {
		if m.IsActive {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b repository.PaymentMethod) int {
		if a.SortOrder != b.SortOrder {
			return int(a.SortOrder - b.SortOrder)
		}
		return bytes.Compare([]byte(a.Name), []byte(b.Name))
	})
	return out, nil
}
