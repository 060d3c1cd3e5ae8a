package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

// AnalysisService orquestra busca de conteúdo, análise pelo provedor e persistência opcional.
type AnalysisService struct {
	provider   ports.AnalysisProvider
	fetcher    ports.ContentFetcher
	repository ports.ScanRepository
	validate   *validator.Validate
	nowFn      func() time.Time
}

// NewAnalysisService cria o serviço. repository pode ser nil quando não há banco configurado.
func NewAnalysisService(provider ports.AnalysisProvider, fetcher ports.ContentFetcher, repository ports.ScanRepository) (*AnalysisService, error) {
	if provider == nil {
		return nil, fmt.Errorf("analysis provider is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("content fetcher is required")
	}
	return &AnalysisService{
		provider:   provider,
		fetcher:    fetcher,
		repository: repository,
		validate:   validator.New(),
		nowFn:      time.Now,
	}, nil
}

func (s *AnalysisService) Analyze(ctx context.Context, in domain.AnalyzeInput) (domain.ScanResult, error) {
	in.Input = strings.TrimSpace(in.Input)
	if err := s.validate.Struct(in); err != nil {
		return domain.ScanResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	content := in.Input
	var sourceURL *string
	if in.Type == domain.InputTypeURL {
		fetched, err := s.fetcher.Fetch(ctx, in.Input)
		if err != nil {
			if errors.Is(err, domain.ErrProtectedURL) {
				return domain.ScanResult{}, err
			}
			return domain.ScanResult{}, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
		}
		content = fetched
		url := in.Input
		sourceURL = &url
	}

	analysis, err := s.provider.Analyze(ctx, content)
	if err != nil {
		log.WithError(err).Error("analysis: provider failed, using fallback analysis")
		analysis = domain.FallbackAnalysis()
	}

	scan := buildScan(in.Type, sourceURL, content, analysis, s.nowFn())

	if s.repository != nil {
		saved, errSave := s.repository.Save(ctx, scan)
		if errSave == nil {
			log.WithField("scan_id", saved.ID).Info("analysis saved to database")
			return domain.ScanResult{Scan: saved, DatabaseSaved: true}, nil
		}
		log.WithError(errSave).Warn("database save failed, continuing without saving")
	}

	return domain.ScanResult{Scan: s.mockIDs(scan), DatabaseSaved: false}, nil
}

func (s *AnalysisService) Find(ctx context.Context, id string) (domain.Scan, error) {
	if s.repository == nil || strings.HasPrefix(id, "mock-") {
		return domain.Scan{}, domain.ErrScanNotFound
	}
	return s.repository.FindByID(ctx, id)
}

func buildScan(inputType domain.InputType, sourceURL *string, content string, analysis domain.Analysis, now time.Time) domain.Scan {
	flags := make([]domain.ScanFlag, 0, len(analysis.RedFlags))
	for _, flag := range analysis.RedFlags {
		flags = append(flags, domain.ScanFlag{
			Severity: flag.Severity,
			Category: flag.Category,
			Quote:    flag.Quote,
			Reality:  flag.Reality,
		})
	}
	return domain.Scan{
		InputType:   inputType,
		SourceURL:   sourceURL,
		Content:     content,
		CompanyName: analysis.CompanyName,
		JobTitle:    analysis.JobTitle,
		RiskScore:   analysis.OverallScore,
		Summary:     analysis.Summary,
		ShareCopy:   analysis.ShareCopy,
		Flags:       flags,
		CreatedAt:   now.UTC(),
	}
}

// mockIDs identifica um scan não persistido, no formato mock-<unix ms>.
func (s *AnalysisService) mockIDs(scan domain.Scan) domain.Scan {
	stamp := strconv.FormatInt(s.nowFn().UnixMilli(), 10)
	scan.ID = "mock-" + stamp
	for i := range scan.Flags {
		scan.Flags[i].ID = "mock-flag-" + stamp + "-" + strconv.Itoa(i)
	}
	return scan
}
