package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxOps) error) error
	GetClient(ctx context.Context, clientID int64) (Client, error)
	ListClients(ctx context.Context, limit int) ([]Client, error)
}

// LedgerPort exposes client ledger reads used by the service.
type LedgerPort interface {
	ListClientTail(ctx context.Context, clientID int64, limit int) ([]ledger.ClientEntry, error)
	FoldClientBalance(ctx context.Context, clientID int64) (float64, error)
	ClientIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages client accounts: payments, credit grants and statements.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerRepo LedgerPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, ledger: ledgerRepo, audit: audit, idempotency: idem}
}

// ApplyEntry appends one client ledger entry and moves the balance projection
// with it, inside the caller's transaction. Sales use this for credit-sale
// charges; the service uses it for payments and credit grants.
func ApplyEntry(ctx context.Context, tx TxOps, entry ledger.ClientEntry) (Client, error) {
	client, err := tx.GetClientForUpdate(ctx, entry.ClientID)
	if err != nil {
		return Client{}, err
	}
	if _, err := tx.AppendClient(ctx, entry); err != nil {
		return Client{}, err
	}
	newBalance := client.Balance + entry.Amount
	if err := tx.WriteBalance(ctx, client.ID, newBalance, client.Version); err != nil {
		return Client{}, err
	}
	client.Balance = newBalance
	client.Version++
	return client, nil
}

// CreateClient registers a new client account with zero balance.
func (s *Service) CreateClient(ctx context.Context, name string) (Client, error) {
	if name == "" {
		return Client{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	var created Client
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxOps) error {
		client, err := tx.CreateClient(ctx, name)
		if err != nil {
			return err
		}
		created = client
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return created, nil
}

// RegisterPayment records an "abono": a negative ledger entry reducing debt.
func (s *Service) RegisterPayment(ctx context.Context, input PaymentInput) (Client, error) {
	return s.applyNegative(ctx, input.ClientID, input.Amount, input.Reference, input.ActorID, ledger.ReasonPayment)
}

// GrantCredit records a discretionary credit in the client's favour.
func (s *Service) GrantCredit(ctx context.Context, input CreditGrantInput) (Client, error) {
	return s.applyNegative(ctx, input.ClientID, input.Amount, input.Reference, input.ActorID, ledger.ReasonCreditGrant)
}

func (s *Service) applyNegative(ctx context.Context, clientID int64, amount float64, reference string, actorID int64, reason ledger.ClientReason) (Client, error) {
	if clientID == 0 {
		return Client{}, fmt.Errorf("%w: client required", ErrValidation)
	}
	if amount <= 0 {
		return Client{}, ErrInvalidAmount
	}
	if reference == "" {
		reference = fmt.Sprintf("%s-%s", reason, uuid.New().String())
	}
	key := fmt.Sprintf("%s:%d:%s", reason, clientID, reference)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "clients.entry"); err != nil {
			return Client{}, err
		}
		insertedKey = true
	}

	var updated Client
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxOps) error {
		client, err := ApplyEntry(ctx, tx, ledger.ClientEntry{
			ClientID:  clientID,
			Amount:    -amount,
			Reason:    reason,
			Reference: reference,
		})
		if err != nil {
			return err
		}
		updated = client
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Client{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("clients:%s", reason),
			Entity:   "client",
			EntityID: fmt.Sprintf("%d", clientID),
			Meta:     map[string]any{"amount": amount, "reference": reference},
		})
	}
	return updated, nil
}

// GetClient returns the cached projection for one client.
func (s *Service) GetClient(ctx context.Context, clientID int64) (Client, error) {
	return s.repo.GetClient(ctx, clientID)
}

// ListClients returns client projections.
func (s *Service) ListClients(ctx context.Context, limit int) ([]Client, error) {
	return s.repo.ListClients(ctx, limit)
}

// Statement replays the newest limit entries of the client's ledger in
// (occurred_at, seq) order. When the window does not reach back to the first
// entry, the fold of the older entries is carried forward as the opening
// balance, so the final running balance always equals the full-ledger fold.
func (s *Service) Statement(ctx context.Context, clientID int64, limit int) (Statement, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return Statement{}, err
	}
	if limit <= 0 {
		limit = 500
	}
	entries, err := s.ledger.ListClientTail(ctx, clientID, limit+1)
	if err != nil {
		return Statement{}, err
	}
	var opening float64
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
		folded, err := s.ledger.FoldClientBalance(ctx, clientID)
		if err != nil {
			return Statement{}, err
		}
		var window float64
		for _, e := range entries {
			window += e.Amount
		}
		opening = folded - window
	}
	return Statement{Client: client, Opening: opening, Lines: ledger.ReplayFrom(opening, entries)}, nil
}

// Reconcile recomputes every client's balance from its ledger fold and
// compares it with the cached projection.
func (s *Service) Reconcile(ctx context.Context) ([]Divergence, error) {
	ids, err := s.ledger.ClientIDs(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	divergences := []Divergence{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			folded, err := s.ledger.FoldClientBalance(gctx, id)
			if err != nil {
				return err
			}
			var projected float64
			client, err := s.repo.GetClient(gctx, id)
			switch {
			case err == nil:
				projected = client.Balance
			case errors.Is(err, ErrClientNotFound):
				projected = 0
			default:
				return err
			}
			if math.Abs(projected-folded) > 1e-6 {
				mu.Lock()
				divergences = append(divergences, Divergence{EntityID: id, Projected: projected, Folded: folded})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(divergences, func(i, j int) bool { return divergences[i].EntityID < divergences[j].EntityID })
	if len(divergences) > 0 {
		return divergences, fmt.Errorf("%w: %d clients affected", shared.ErrProjectionDivergence, len(divergences))
	}
	return divergences, nil
}
