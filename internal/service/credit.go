package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type creditLedger struct {
	store     repository.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewCreditLedger creates the credit ledger. The cached users.credits value
// only ever moves together with a credit_transactions row.
func NewCreditLedger(store repository.Store, publisher events.Publisher, logger *slog.Logger) domain.CreditLedger {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &creditLedger{
		store:     store,
		publisher: publisher,
		logger:    logger.With("service", "credit"),
	}
}

func (s *creditLedger) Debit(ctx context.Context, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	return s.standalone(ctx, "credit.debit", func(q repository.Querier) (*domain.CreditTransaction, error) {
		return s.DebitTx(ctx, q, userID, amount, entry)
	})
}

func (s *creditLedger) Credit(ctx context.Context, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	return s.standalone(ctx, "credit.credit", func(q repository.Querier) (*domain.CreditTransaction, error) {
		return s.CreditTx(ctx, q, userID, amount, entry)
	})
}

func (s *creditLedger) standalone(ctx context.Context, op string, fn func(repository.Querier) (*domain.CreditTransaction, error)) (*domain.CreditTransaction, error) {
	var tx *domain.CreditTransaction
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		tx, err = fn(q)
		return err
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to record credit transaction")
	}
	publishCredit(ctx, s.publisher, s.logger, tx)
	return tx, nil
}

func (s *creditLedger) DebitTx(ctx context.Context, q repository.Querier, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidCreditAmount
	}
	return s.apply(ctx, q, "credit.debit", userID, -amount, entry)
}

func (s *creditLedger) CreditTx(ctx context.Context, q repository.Querier, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidCreditAmount
	}
	return s.apply(ctx, q, "credit.credit", userID, amount, entry)
}

// apply moves the cached balance by delta with a guarded UPDATE and writes the
// matching log row. Both statements run on q so they commit together.
func (s *creditLedger) apply(ctx context.Context, q repository.Querier, op string, userID uuid.UUID, delta int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	if !entry.Type.Valid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown credit transaction type %q", entry.Type))
	}

	balance, err := q.ApplyCreditDelta(ctx, repository.ApplyCreditDeltaParams{ID: userID, Delta: delta})
	if repository.IsNotFound(err) {
		return nil, s.explainRejected(ctx, q, op, userID, delta)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update balance")
	}

	row, err := q.InsertCreditTransaction(ctx, repository.InsertCreditTransactionParams{
		UserID:  userID,
		Type:    string(entry.Type),
		Amount:  delta,
		Note:    entry.Note,
		OrderID: repository.NullUUID(entry.OrderID),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to write credit transaction")
	}

	if telemetry.Business != nil {
		if delta < 0 {
			telemetry.Business.CreditDebited.WithLabelValues(string(entry.Type)).Add(float64(-delta))
		} else {
			telemetry.Business.CreditGranted.WithLabelValues(string(entry.Type)).Add(float64(delta))
		}
	}

	tx := creditTransactionFromRow(row)
	tx.Balance = balance
	return &tx, nil
}

// explainRejected tells a missing user apart from a balance that would go
// negative after the guarded UPDATE matched no row.
func (s *creditLedger) explainRejected(ctx context.Context, q repository.Querier, op string, userID uuid.UUID, delta int64) error {
	user, err := q.GetUser(ctx, userID)
	if repository.IsNotFound(err) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Internal(err, op, "failed to load user")
	}

	if telemetry.Business != nil {
		telemetry.Business.CreditRejects.Inc()
	}
	s.logger.Info("debit refused", "user_id", userID, "balance", user.Credits, "requested", -delta)

	return domain.ErrInsufficientCredit.WithDetail(op, fmt.Sprintf(
		"Balance %s is below the required %s",
		domain.FormatMinor(user.Credits), domain.FormatMinor(-delta),
	))
}

// Adjust routes admin corrections through the ledger so the log stays the
// source of truth.
func (s *creditLedger) Adjust(ctx context.Context, userID uuid.UUID, signedAmount int64, note string) (*domain.CreditTransaction, error) {
	entry := domain.CreditEntry{Type: domain.CreditAdminAdd, Note: note}
	switch {
	case signedAmount > 0:
		return s.Credit(ctx, userID, signedAmount, entry)
	case signedAmount < 0:
		return s.Debit(ctx, userID, -signedAmount, entry)
	default:
		return nil, domain.ErrInvalidCreditAmount
	}
}

func (s *creditLedger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := s.store.GetUser(ctx, userID)
	if repository.IsNotFound(err) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, domain.Internal(err, "credit.balance", "failed to load user")
	}
	return user.Credits, nil
}

// History returns the newest transactions first. Balance on each row is the
// balance right after that transaction, walked back from the cached balance.
func (s *creditLedger) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CreditTransaction, error) {
	const op = "credit.history"
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	var (
		user repository.User
		rows []repository.CreditTransaction
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		user, err = q.GetUser(ctx, userID)
		if repository.IsNotFound(err) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		rows, err = q.ListCreditTransactions(ctx, repository.ListCreditTransactionsParams{
			UserID: userID,
			Limit:  int32(limit),
		})
		return err
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to load credit history")
	}

	out := make([]domain.CreditTransaction, 0, len(rows))
	balance := user.Credits
	for _, row := range rows {
		tx := creditTransactionFromRow(row)
		tx.Balance = balance
		balance -= row.Amount
		out = append(out, tx)
	}
	return out, nil
}

// Reconcile compares the cached balance with the log sum. The two reads are
// separate statements, so a mismatch is read again once before it is
// reported as drift.
func (s *creditLedger) Reconcile(ctx context.Context, userID uuid.UUID) (*domain.Reconciliation, error) {
	const op = "credit.reconcile"

	var rec *domain.Reconciliation
	for attempt := 0; attempt < 2; attempt++ {
		user, err := s.store.GetUser(ctx, userID)
		if repository.IsNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		if err != nil {
			return nil, domain.Internal(err, op, "failed to load user")
		}
		sum, err := s.store.SumCreditTransactions(ctx, userID)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to sum credit transactions")
		}

		rec = &domain.Reconciliation{UserID: userID, CachedBalance: user.Credits, LedgerBalance: sum}
		if rec.Consistent() {
			return rec, nil
		}
	}

	if telemetry.Business != nil {
		telemetry.Business.LedgerDrift.Inc()
	}
	s.logger.Error("credit ledger drift",
		"user_id", userID,
		"cached_balance", rec.CachedBalance,
		"ledger_balance", rec.LedgerBalance,
	)
	return rec, nil
}

func creditTransactionFromRow(row repository.CreditTransaction) domain.CreditTransaction {
	return domain.CreditTransaction{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      domain.CreditType(row.Type),
		Amount:    row.Amount,
		Note:      row.Note,
		OrderID:   repository.UUIDFrom(row.OrderID),
		CreatedAt: row.CreatedAt,
	}
}

// publishCredit announces a committed credit transaction. Failures are logged
// and never surface to the caller.
func publishCredit(ctx context.Context, pub events.Publisher, logger *slog.Logger, tx *domain.CreditTransaction) {
	if tx == nil {
		return
	}
	err := pub.Publish(ctx, events.SubjectCreditTransaction, events.CreditTransaction{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		Balance:       tx.Balance,
		OrderID:       tx.OrderID,
	})
	if err != nil {
		logger.Warn("failed to publish credit transaction", "transaction_id", tx.ID, "error", err)
	}
}
