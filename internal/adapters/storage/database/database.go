// Package database persiste os scans de vagas via gorm (SQLite ou PostgreSQL).
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open abre a conexão para o driver informado.
func Open(driver, dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: dsn is required")
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres, "":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver: %s", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}
	return conn, nil
}

// Migrate cria ou atualiza as tabelas de scans.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(&JobScan{}, &RiskFlag{}); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}

type ScanRepository struct {
	db *gorm.DB
}

var _ ports.ScanRepository = (*ScanRepository)(nil)

func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Save(ctx context.Context, scan domain.Scan) (domain.Scan, error) {
	row := toRow(scan)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	for i := range row.Flags {
		if row.Flags[i].ID == "" {
			row.Flags[i].ID = uuid.NewString()
		}
		row.Flags[i].JobScanID = row.ID
	}

	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return domain.Scan{}, fmt.Errorf("db: create scan: %w", errCreate)
	}
	return fromRow(row), nil
}

func (r *ScanRepository) FindByID(ctx context.Context, id string) (domain.Scan, error) {
	var row JobScan
	errFind := r.db.WithContext(ctx).
		Preload("Flags").
		Where("id = ?", id).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return domain.Scan{}, domain.ErrScanNotFound
		}
		return domain.Scan{}, fmt.Errorf("db: find scan: %w", errFind)
	}
	return fromRow(row), nil
}

func toRow(scan domain.Scan) JobScan {
	flags := make([]RiskFlag, 0, len(scan.Flags))
	for _, f := range scan.Flags {
		flags = append(flags, RiskFlag{
			ID:       f.ID,
			Severity: f.Severity,
			Category: f.Category,
			Quote:    f.Quote,
			Reality:  f.Reality,
		})
	}
	return JobScan{
		ID:          scan.ID,
		InputType:   string(scan.InputType),
		SourceURL:   scan.SourceURL,
		Content:     scan.Content,
		CompanyName: scan.CompanyName,
		JobTitle:    scan.JobTitle,
		RiskScore:   scan.RiskScore,
		Summary:     scan.Summary,
		ShareCopy:   scan.ShareCopy,
		Flags:       flags,
		CreatedAt:   scan.CreatedAt,
	}
}

func fromRow(row JobScan) domain.Scan {
	flags := make([]domain.ScanFlag, 0, len(row.Flags))
	for _, f := range row.Flags {
		flags = append(flags, domain.ScanFlag{
			ID:       f.ID,
			Severity: f.Severity,
			Category: f.Category,
			Quote:    f.Quote,
			Reality:  f.Reality,
		})
	}
	return domain.Scan{
		ID:          row.ID,
		InputType:   domain.InputType(row.InputType),
		SourceURL:   row.SourceURL,
		Content:     row.Content,
		CompanyName: row.CompanyName,
		JobTitle:    row.JobTitle,
		RiskScore:   row.RiskScore,
		Summary:     row.Summary,
		ShareCopy:   row.ShareCopy,
		Flags:       flags,
		CreatedAt:   row.CreatedAt,
	}
}
