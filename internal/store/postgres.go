package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

// PostgresLedger stores royalty records in Postgres with per-record updates,
// for deployments that outgrow the single snapshot file.
type PostgresLedger struct {
	db    *pgxpool.Pool
	nowFn func() time.Time
}

// NewPostgresLedger connects a pool and verifies the database is reachable.
func NewPostgresLedger(ctx context.Context, connString string) (*PostgresLedger, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresLedger{db: pool, nowFn: time.Now}, nil
}

func (l *PostgresLedger) Close() error {
	l.db.Close()
	return nil
}

const royaltyColumns = `id, payer_id, content_id, token_instance_id, title, amount,
	uploader_id, uploader_name, chat_id, file_id, channel_id,
	created_at, expires_at, paid, paid_at, payment_ref, claimed, claimed_at, claim_failed`

func scanRoyalty(row pgx.Row) (*models.PendingRoyalty, error) {
	var r models.PendingRoyalty
	err := row.Scan(&r.ID, &r.PayerID, &r.ContentID, &r.TokenInstanceID, &r.Title, &r.Amount,
		&r.UploaderID, &r.UploaderDisplayName, &r.Delivery.ChatID, &r.Delivery.FileID, &r.Delivery.ChannelID,
		&r.CreatedAt, &r.ExpiresAt, &r.Paid, &r.PaidAt, &r.PaymentRef, &r.Claimed, &r.ClaimedAt, &r.ClaimFailed)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (l *PostgresLedger) CreateOrGetPending(ctx context.Context, params models.CreateRoyaltyParams) (*models.PendingRoyalty, bool, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanRoyalty(tx.QueryRow(ctx,
		`SELECT `+royaltyColumns+` FROM royalties
		 WHERE payer_id = $1 AND lower(content_id) = lower($2) AND NOT paid
		 ORDER BY created_at LIMIT 1 FOR UPDATE`,
		params.PayerID, params.ContentID))
	if err == nil {
		if existing.Delivery.Merge(params.Delivery) {
			_, err = tx.Exec(ctx,
				`UPDATE royalties SET chat_id = $1, file_id = $2, channel_id = $3 WHERE id = $4`,
				existing.Delivery.ChatID, existing.Delivery.FileID, existing.Delivery.ChannelID, existing.ID)
			if err != nil {
				return nil, false, fmt.Errorf("delivery backfill failed: %w", err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("tx commit failed: %w", err)
		}
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("pending lookup failed: %w", err)
	}

	now := l.nowFn()
	record := models.PendingRoyalty{
		ID:                  uuid.NewString(),
		PayerID:             params.PayerID,
		ContentID:           params.ContentID,
		TokenInstanceID:     params.TokenInstanceID,
		Title:               params.Title,
		Amount:              params.Amount,
		UploaderID:          params.UploaderID,
		UploaderDisplayName: params.UploaderDisplayName,
		Delivery:            params.Delivery,
		CreatedAt:           now,
		ExpiresAt:           now.Add(RoyaltyTTL),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO royalties (`+royaltyColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		record.ID, record.PayerID, record.ContentID, record.TokenInstanceID, record.Title, record.Amount,
		record.UploaderID, record.UploaderDisplayName, record.Delivery.ChatID, record.Delivery.FileID, record.Delivery.ChannelID,
		record.CreatedAt, record.ExpiresAt, record.Paid, record.PaidAt, record.PaymentRef, record.Claimed, record.ClaimedAt, record.ClaimFailed)
	if err != nil {
		return nil, false, fmt.Errorf("royalty insert failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("tx commit failed: %w", err)
	}
	return &record, true, nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (*models.PendingRoyalty, error) {
	record, err := scanRoyalty(l.db.QueryRow(ctx,
		`SELECT `+royaltyColumns+` FROM royalties WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoyaltyNotFound
	}
	return record, err
}

func (l *PostgresLedger) ListUnpaidByPayer(ctx context.Context, payerID int64) ([]models.PendingRoyalty, error) {
	return l.list(ctx,
		`SELECT `+royaltyColumns+` FROM royalties WHERE payer_id = $1 AND NOT paid ORDER BY created_at`,
		payerID)
}

func (l *PostgresLedger) ListClaimable(ctx context.Context, uploaderID int64) ([]models.PendingRoyalty, error) {
	return l.list(ctx,
		`SELECT `+royaltyColumns+` FROM royalties WHERE uploader_id = $1 AND paid AND NOT claimed ORDER BY created_at`,
		uploaderID)
}

func (l *PostgresLedger) list(ctx context.Context, query string, arg any) ([]models.PendingRoyalty, error) {
	rows, err := l.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingRoyalty
	for rows.Next() {
		record, err := scanRoyalty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) MarkPaid(ctx context.Context, id, paymentRef string) (bool, error) {
	tag, err := l.db.Exec(ctx,
		`UPDATE royalties SET paid = true, paid_at = $1,
		 payment_ref = CASE WHEN $2 = '' THEN payment_ref ELSE $2 END
		 WHERE id = $3`,
		l.nowFn(), paymentRef, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (l *PostgresLedger) MarkClaimed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.Exec(ctx,
		`UPDATE royalties SET claimed = true, claimed_at = $1, claim_failed = false WHERE id = ANY($2)`,
		l.nowFn(), ids)
	return err
}

func (l *PostgresLedger) MarkClaimFailed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.Exec(ctx,
		`UPDATE royalties SET claim_failed = true WHERE id = ANY($1) AND NOT claimed`, ids)
	return err
}
