// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

const uniqueViolation = "23505"

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

var _ DB = (*pgxpool.Pool)(nil)

// queryRower is satisfied by both the pool and a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the durable Store backed by a pgx pool.
type Postgres struct {
	pool DB
}

// NewPostgres creates a store backed by the given pool. It ensures the
// schema exists and migrates legacy RFP statuses.
func NewPostgres(ctx context.Context, pool DB) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure procurement schema: %w", err)
	}
	slog.Info("procurement store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vendors (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			email           TEXT NOT NULL UNIQUE,
			contact_person  TEXT DEFAULT '',
			phone           TEXT DEFAULT '',
			specializations TEXT[] DEFAULT '{}',
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS rfps (
			id                     TEXT PRIMARY KEY,
			title                  TEXT NOT NULL,
			description            TEXT DEFAULT '',
			original_prompt        TEXT DEFAULT '',
			requirements           JSONB NOT NULL DEFAULT '{}',
			status                 TEXT NOT NULL DEFAULT 'draft',
			overall_recommendation TEXT DEFAULT '',
			created_at             TIMESTAMPTZ DEFAULT NOW(),
			updated_at             TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rfps_status ON rfps(status);

		CREATE TABLE IF NOT EXISTS rfp_recipients (
			rfp_id    TEXT NOT NULL REFERENCES rfps(id) ON DELETE CASCADE,
			vendor_id TEXT NOT NULL,
			position  INT NOT NULL DEFAULT 0,
			PRIMARY KEY (rfp_id, vendor_id)
		);
		CREATE INDEX IF NOT EXISTS idx_rfp_recipients_vendor ON rfp_recipients(vendor_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT PRIMARY KEY,
			rfp_id            TEXT NOT NULL,
			vendor_id         TEXT NOT NULL,
			source_message_id TEXT DEFAULT '',
			email_subject     TEXT DEFAULT '',
			email_content     TEXT DEFAULT '',
			quote             JSONB NOT NULL DEFAULT '{}',
			status            TEXT NOT NULL DEFAULT 'pending_review',
			received_at       TIMESTAMPTZ NOT NULL,
			parsed_at         TIMESTAMPTZ NOT NULL,
			reviewed_at       TIMESTAMPTZ,
			reviewed_by       TEXT DEFAULT '',
			rejection_reason  TEXT DEFAULT '',
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			updated_at        TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(rfp_id, vendor_id)
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_rfp ON conversations(rfp_id, received_at DESC);

		CREATE TABLE IF NOT EXISTS proposals (
			id            TEXT PRIMARY KEY,
			rfp_id        TEXT NOT NULL,
			vendor_id     TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'sent',
			email_content TEXT DEFAULT '',
			quote         JSONB,
			evaluation    JSONB,
			received_at   TIMESTAMPTZ,
			parsed_at     TIMESTAMPTZ,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(rfp_id, vendor_id)
		);

		UPDATE rfps SET status = 'evaluated', updated_at = NOW() WHERE status = 'completed';
	`)
	return err
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) CreateVendor(ctx context.Context, v *models.Vendor) error {
	v.Email = models.NormalizeEmail(v.Email)
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	specs := v.Specializations
	if specs == nil {
		specs = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO vendors (id, name, email, contact_person, phone, specializations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.Name, v.Email, v.ContactPerson, v.Phone, specs, v.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Postgres) VendorByEmail(ctx context.Context, email string) (*models.Vendor, error) {
	var v models.Vendor
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, contact_person, phone, specializations, created_at
		FROM vendors
		WHERE email = $1
	`, models.NormalizeEmail(email)).Scan(
		&v.ID, &v.Name, &v.Email, &v.ContactPerson, &v.Phone, &v.Specializations, &v.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// RecipientEmails returns every vendor email that has been sent any RFP.
func (s *Postgres) RecipientEmails(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT v.email
		FROM rfp_recipients rr
		JOIN vendors v ON v.id = rr.vendor_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out[models.NormalizeEmail(email)] = struct{}{}
	}
	return out, rows.Err()
}

// CreateRFP inserts the RFP and its recipient list in one transaction.
func (s *Postgres) CreateRFP(ctx context.Context, r *models.RFP) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.RFPDraft
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt

	reqs, err := json.Marshal(r.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO rfps (id, title, description, original_prompt, requirements, status,
		                  overall_recommendation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, r.ID, r.Title, r.Description, r.OriginalPrompt, reqs, string(r.Status),
		r.OverallRecommendation, r.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert rfp: %w", err)
	}

	for i, v := range r.Recipients {
		if _, err := tx.Exec(ctx, `
			INSERT INTO rfp_recipients (rfp_id, vendor_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, r.ID, v.ID, i); err != nil {
			return fmt.Errorf("insert rfp recipient: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const rfpColumns = `r.id, r.title, r.description, r.original_prompt, r.requirements, r.status,
	r.overall_recommendation, r.created_at, r.updated_at`

func (s *Postgres) GetRFP(ctx context.Context, id string) (*models.RFP, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rfpColumns+` FROM rfps r WHERE r.id = $1`, id)
	r, err := scanRFP(row)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.loadRecipients(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RFPsForVendor returns the RFPs in one of statuses that list email among
// their recipients, oldest first.
func (s *Postgres) RFPsForVendor(ctx context.Context, email string, statuses []models.RFPStatus) ([]models.RFP, error) {
	// Legacy rows are migrated at startup, but match them anyway.
	wanted := make([]string, 0, len(statuses)+1)
	for _, st := range statuses {
		wanted = append(wanted, string(st))
		if st == models.RFPEvaluated {
			wanted = append(wanted, string(models.RFPCompleted))
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+rfpColumns+`
		FROM rfps r
		JOIN rfp_recipients rr ON rr.rfp_id = r.id
		JOIN vendors v ON v.id = rr.vendor_id
		WHERE v.email = $1 AND r.status = ANY($2)
		ORDER BY r.created_at ASC, r.id ASC
	`, models.NormalizeEmail(email), wanted)
	if err != nil {
		return nil, err
	}

	var out []models.RFP
	for rows.Next() {
		r, err := scanRFP(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadRecipients(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Postgres) loadRecipients(ctx context.Context, r *models.RFP) error {
	rows, err := s.pool.Query(ctx, `
		SELECT v.id, v.name, v.email, v.contact_person, v.phone, v.specializations, v.created_at
		FROM rfp_recipients rr
		JOIN vendors v ON v.id = rr.vendor_id
		WHERE rr.rfp_id = $1
		ORDER BY rr.position
	`, r.ID)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	defer rows.Close()

	r.Recipients = r.Recipients[:0]
	for rows.Next() {
		var v models.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.ContactPerson, &v.Phone, &v.Specializations, &v.CreatedAt); err != nil {
			return err
		}
		r.Recipients = append(r.Recipients, v)
	}
	return rows.Err()
}

func (s *Postgres) SetRFPEvaluation(ctx context.Context, id string, status models.RFPStatus, recommendation string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rfps SET status = $1, overall_recommendation = $2, updated_at = NOW()
		WHERE id = $3
	`, string(status), recommendation, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertConversation inserts or fully replaces the conversation keyed on
// (rfp_id, vendor_id). Review state is cleared on replace.
func (s *Postgres) UpsertConversation(ctx context.Context, c *models.Conversation) (bool, error) {
	return upsertConversation(ctx, s.pool, c)
}

// RecordReply upserts c and, if its RFP is still sent, advances the RFP to
// responses_received. Both writes commit together or not at all.
func (s *Postgres) RecordReply(ctx context.Context, c *models.Conversation) (created, advanced bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM rfps WHERE id = $1 FOR UPDATE`, c.RFPID).Scan(&status); err != nil {
		return false, false, fmt.Errorf("lock rfp: %w", notFound(err))
	}

	created, err = upsertConversation(ctx, tx, c)
	if err != nil {
		return false, false, fmt.Errorf("upsert conversation: %w", err)
	}

	if models.RFPStatus(status) == models.RFPSent {
		if _, err := tx.Exec(ctx, `
			UPDATE rfps SET status = $1, updated_at = NOW()
			WHERE id = $2
		`, string(models.RFPResponsesReceived), c.RFPID); err != nil {
			return false, false, fmt.Errorf("advance rfp status: %w", err)
		}
		advanced = true
	}

	if err := tx.Commit(ctx); err != nil {
		return false, false, fmt.Errorf("commit: %w", err)
	}
	return created, advanced, nil
}

func upsertConversation(ctx context.Context, q queryRower, c *models.Conversation) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	quote, err := json.Marshal(c.Quote)
	if err != nil {
		return false, fmt.Errorf("marshal quote: %w", err)
	}

	var created bool
	err = q.QueryRow(ctx, `
		INSERT INTO conversations
			(id, rfp_id, vendor_id, source_message_id, email_subject, email_content,
			 quote, status, received_at, parsed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending_review', $8, $9)
		ON CONFLICT (rfp_id, vendor_id) DO UPDATE SET
			source_message_id = EXCLUDED.source_message_id,
			email_subject     = EXCLUDED.email_subject,
			email_content     = EXCLUDED.email_content,
			quote             = EXCLUDED.quote,
			status            = 'pending_review',
			received_at       = EXCLUDED.received_at,
			parsed_at         = EXCLUDED.parsed_at,
			reviewed_at       = NULL,
			reviewed_by       = '',
			rejection_reason  = '',
			updated_at        = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)
	`, c.ID, c.RFPID, c.VendorID, c.SourceMessageID, c.EmailSubject, c.EmailContent,
		quote, c.ReceivedAt, c.ParsedAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &created)
	if err != nil {
		return false, err
	}

	c.Status = models.ConversationPending
	c.RejectionReason = ""
	c.ReviewedAt = nil
	c.ReviewedBy = ""
	return created, nil
}

const conversationColumns = `id, rfp_id, vendor_id, source_message_id, email_subject, email_content,
	quote, status, received_at, parsed_at, reviewed_at, reviewed_by, rejection_reason,
	created_at, updated_at`

func (s *Postgres) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Postgres) FindConversation(ctx context.Context, rfpID, vendorID string) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE rfp_id = $1 AND vendor_id = $2
	`, rfpID, vendorID)
	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Postgres) ListConversations(ctx context.Context, rfpID string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE rfp_id = $1
		ORDER BY received_at DESC
	`, rfpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveReview(ctx context.Context, c *models.Conversation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET status = $1, reviewed_at = $2, reviewed_by = $3, rejection_reason = $4, updated_at = NOW()
		WHERE id = $5
	`, string(c.Status), c.ReviewedAt, c.ReviewedBy, c.RejectionReason, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertProposal inserts or replaces the proposal keyed on (rfp_id, vendor_id).
func (s *Postgres) UpsertProposal(ctx context.Context, p *models.Proposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	quote, err := marshalNullable(p.Quote)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	eval, err := marshalNullable(p.Evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO proposals
			(id, rfp_id, vendor_id, status, email_content, quote, evaluation, received_at, parsed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (rfp_id, vendor_id) DO UPDATE SET
			status        = EXCLUDED.status,
			email_content = EXCLUDED.email_content,
			quote         = EXCLUDED.quote,
			evaluation    = EXCLUDED.evaluation,
			received_at   = EXCLUDED.received_at,
			parsed_at     = EXCLUDED.parsed_at
		RETURNING id, created_at
	`, p.ID, p.RFPID, p.VendorID, string(p.Status), p.EmailContent, quote, eval,
		p.ReceivedAt, p.ParsedAt,
	).Scan(&p.ID, &p.CreatedAt)
}

func (s *Postgres) ListProposals(ctx context.Context, rfpID string, statuses ...models.ProposalStatus) ([]models.Proposal, error) {
	wanted := make([]string, len(statuses))
	for i, st := range statuses {
		wanted[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, rfp_id, vendor_id, status, email_content, quote, evaluation,
		       received_at, parsed_at, created_at
		FROM proposals
		WHERE rfp_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at ASC
	`, rfpID, wanted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Proposal
	for rows.Next() {
		var (
			p           models.Proposal
			status      string
			quote, eval []byte
		)
		if err := rows.Scan(&p.ID, &p.RFPID, &p.VendorID, &status, &p.EmailContent,
			&quote, &eval, &p.ReceivedAt, &p.ParsedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Status = models.ProposalStatus(status)
		if len(quote) > 0 {
			p.Quote = new(models.ParsedQuote)
			if err := json.Unmarshal(quote, p.Quote); err != nil {
				return nil, fmt.Errorf("decode proposal quote: %w", err)
			}
		}
		if len(eval) > 0 {
			p.Evaluation = new(models.Evaluation)
			if err := json.Unmarshal(eval, p.Evaluation); err != nil {
				return nil, fmt.Errorf("decode proposal evaluation: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveEvaluation(ctx context.Context, proposalID string, e models.Evaluation) error {
	eval, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE proposals SET evaluation = $1, status = 'evaluated'
		WHERE id = $2
	`, eval, proposalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRFP scans a single row selected with rfpColumns.
func scanRFP(row pgx.Row) (*models.RFP, error) {
	var (
		r      models.RFP
		reqs   []byte
		status string
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &r.OriginalPrompt, &reqs, &status,
		&r.OverallRecommendation, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = models.NormalizeStatus(models.RFPStatus(status))
	if len(reqs) > 0 {
		if err := json.Unmarshal(reqs, &r.Requirements); err != nil {
			return nil, fmt.Errorf("decode requirements: %w", err)
		}
	}
	return &r, nil
}

// scanConversation scans a single row selected with conversationColumns.
func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var (
		c      models.Conversation
		quote  []byte
		status string
	)
	if err := row.Scan(&c.ID, &c.RFPID, &c.VendorID, &c.SourceMessageID, &c.EmailSubject,
		&c.EmailContent, &quote, &status, &c.ReceivedAt, &c.ParsedAt, &c.ReviewedAt,
		&c.ReviewedBy, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = models.ConversationStatus(status)
	if len(quote) > 0 {
		if err := json.Unmarshal(quote, &c.Quote); err != nil {
			return nil, fmt.Errorf("decode conversation quote: %w", err)
		}
	}
	return &c, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
