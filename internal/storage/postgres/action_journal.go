package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/storage"
)

// ActionJournal implements storage.ActionJournal using PostgreSQL.
type ActionJournal struct {
	pool *Pool
}

// NewActionJournal creates a new ActionJournal.
func NewActionJournal(pool *Pool) *ActionJournal {
	return &ActionJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionJournal = (*ActionJournal)(nil)

// Begin records a new pending action. Returns ErrDuplicateKey if action_id exists.
func (j *ActionJournal) Begin(ctx context.Context, a *domain.ActionRecord) (err error) {
	defer observeQuery("begin_action", time.Now(), &err)

	if err := storage.ValidateAction(a); err != nil {
		return err
	}
	if a.Amount > math.MaxInt64 {
		return fmt.Errorf("%w: amount %d out of range", storage.ErrInvalidInput, a.Amount)
	}

	query := `
		INSERT INTO sale_actions (
			action_id, kind, signer, amount, status, signature, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = j.pool.Exec(ctx, query,
		a.ActionID,
		string(a.Kind),
		a.Signer,
		int64(a.Amount),
		string(a.Status),
		a.Signature,
		a.Error,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// Finish moves a pending action to a terminal status.
func (j *ActionJournal) Finish(ctx context.Context, actionID string, status domain.ActionStatus, signature, errText *string, updatedAt int64) (err error) {
	defer observeQuery("finish_action", time.Now(), &err)

	if err := storage.ValidateFinish(actionID, status); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, j.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `
			SELECT status FROM sale_actions WHERE action_id = $1 FOR UPDATE
		`, actionID).Scan(&current)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("lock action: %w", err)
		}
		if domain.ActionStatus(current) != domain.ActionStatusPending {
			return fmt.Errorf("%w: action %s is %s", storage.ErrInvalidInput, actionID, current)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE sale_actions
			SET status = $2, signature = $3, error = $4, updated_at = $5
			WHERE action_id = $1
		`, actionID, string(status), signature, errText, updatedAt); err != nil {
			return fmt.Errorf("finish action: %w", err)
		}
		return nil
	})
}

// GetByID retrieves an action by its ID. Returns ErrNotFound if not exists.
func (j *ActionJournal) GetByID(ctx context.Context, actionID string) (*domain.ActionRecord, error) {
	query := `
		SELECT action_id, kind, signer, amount, status, signature, error, created_at, updated_at
		FROM sale_actions
		WHERE action_id = $1
	`

	a, err := scanAction(j.pool.QueryRow(ctx, query, actionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get action by id: %w", err)
	}
	return a, nil
}

// GetBySigner retrieves all actions of a signer, ordered by created_at ASC.
func (j *ActionJournal) GetBySigner(ctx context.Context, signer string) ([]*domain.ActionRecord, error) {
	query := `
		SELECT action_id, kind, signer, amount, status, signature, error, created_at, updated_at
		FROM sale_actions
		WHERE signer = $1
		ORDER BY created_at ASC, action_id ASC
	`

	rows, err := j.pool.Query(ctx, query, signer)
	if err != nil {
		return nil, fmt.Errorf("query actions by signer: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// GetPending retrieves all pending actions, ordered by created_at ASC.
func (j *ActionJournal) GetPending(ctx context.Context) ([]*domain.ActionRecord, error) {
	query := `
		SELECT action_id, kind, signer, amount, status, signature, error, created_at, updated_at
		FROM sale_actions
		WHERE status = 'PENDING'
		ORDER BY created_at ASC, action_id ASC
	`

	rows, err := j.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// scanAction scans a single row into ActionRecord.
func scanAction(row pgx.Row) (*domain.ActionRecord, error) {
	var a domain.ActionRecord
	var kind, status string
	var amount int64

	err := row.Scan(
		&a.ActionID,
		&kind,
		&a.Signer,
		&amount,
		&status,
		&a.Signature,
		&a.Error,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ActionKind(kind)
	a.Status = domain.ActionStatus(status)
	a.Amount = uint64(amount)
	return &a, nil
}

// scanActions scans multiple rows into ActionRecord slice.
func scanActions(rows pgx.Rows) ([]*domain.ActionRecord, error) {
	var actions []*domain.ActionRecord

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}

	return actions, nil
}
