package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/pkg/export"
	"github.com/noah-isme/lessonbook-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes statement export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.StatementFormat
	ExpiresAt    time.Time
}

// StatementExporter renders a student's ledger into a downloadable file.
type StatementExporter struct {
	ledger   ledgerReader
	students studentReader
	storage  fileStorage
	csv      datasetRenderer
	pdf      datasetRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewStatementExporter constructs a StatementExporter.
func NewStatementExporter(ledger ledgerReader, students studentReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *StatementExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &StatementExporter{
		ledger:   ledger,
		students: students,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the statement for job, stores it and signs a download token.
func (e *StatementExporter) Generate(ctx context.Context, job *models.StatementJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	student, err := e.students.FindByID(ctx, job.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	entries, err := e.ledger.ListByStudent(ctx, job.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	dataset := statementDataset(student, entries)

	var payload []byte
	switch job.Format {
	case models.StatementFormatCSV:
		payload, err = e.csv.Render(dataset)
	case models.StatementFormatPDF:
		payload, err = e.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("statement_%s_%s.%s", sanitizeFilename(student.Username), time.Now().UTC().Format("20060102_150405"), job.Format)
	relPath, err := e.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := e.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(e.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/statements/download/%s", prefix, token),
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (e *StatementExporter) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return e.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (e *StatementExporter) Open(relPath string) (*os.File, error) {
	return e.storage.Open(relPath)
}

// Delete removes a stored statement file.
func (e *StatementExporter) Delete(relPath string) error {
	return e.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (the configured ResultTTL when ttl <= 0).
func (e *StatementExporter) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = e.cfg.ResultTTL
	}
	return e.storage.CleanupOlderThan(ttl)
}

func statementDataset(student *models.Student, entries []models.LedgerEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(entries))
	credits, debits := decimal.Zero, decimal.Zero
	for _, entry := range entries {
		delta := entry.Delta()
		if delta.IsNegative() {
			debits = debits.Add(delta.Neg())
		} else {
			credits = credits.Add(delta)
		}
		rows = append(rows, map[string]string{
			"date":       entry.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			"memo":       entry.Memo,
			"old_credit": entry.OldCredit.StringFixed(2),
			"delta":      delta.StringFixed(2),
			"new_credit": entry.NewCredit.StringFixed(2),
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("Credit statement: %s (%s)", student.FullName, student.Username),
		Columns: []export.Column{
			{Key: "date", Title: "Date", Width: 2},
			{Key: "memo", Title: "Memo", Width: 4},
			{Key: "old_credit", Title: "Old credit", Numeric: true},
			{Key: "delta", Title: "Change", Numeric: true},
			{Key: "new_credit", Title: "New credit", Numeric: true},
		},
		Rows: rows,
		Footer: []string{
			fmt.Sprintf("Total credited: %s", credits.StringFixed(2)),
			fmt.Sprintf("Total debited: %s", debits.StringFixed(2)),
			fmt.Sprintf("Current balance: %s", student.CreditBalance.StringFixed(2)),
		},
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
