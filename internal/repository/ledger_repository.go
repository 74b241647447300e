package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

const ledgerColumns = `seq, id, student_id, old_credit, new_credit, memo, created_at`

// LedgerRepository appends and reads credit ledger entries. It offers no update
// or delete; the table additionally rejects both with a trigger.
type LedgerRepository struct {
	db sqlx.ExtContext
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(db sqlx.ExtContext) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendLedgerEntry inserts the entry and fills ID, Seq and CreatedAt.
func (r *LedgerRepository) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO ledger_entries (id, student_id, old_credit, new_credit, memo, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`
	if err := sqlx.GetContext(ctx, r.db, &entry.Seq, query, entry.ID, entry.StudentID, entry.OldCredit, entry.NewCredit, entry.Memo, entry.CreatedAt); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// FindLedgerEntry returns one entry or sql.ErrNoRows.
func (r *LedgerRepository) FindLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByStudent returns the student's entries oldest first.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID string) ([]models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE student_id = $1 ORDER BY seq ASC`
	var entries []models.LedgerEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}
