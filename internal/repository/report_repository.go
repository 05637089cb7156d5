package repository

import (
	"context"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
)

// ReportRepository stores report file metadata.
type ReportRepository interface {
	Create(ctx context.Context, report *domain.ReportFile) error
	GetByID(ctx context.Context, id string) (*domain.ReportFile, error)
	List(ctx context.Context) ([]domain.ReportFile, error)
	Delete(ctx context.Context, id string) error
}

type reportRepository struct {
	store docstore.Store
}

// NewReportRepository returns a document-store-backed implementation.
func NewReportRepository(store docstore.Store) ReportRepository {
	return &reportRepository{store: store}
}

func (r *reportRepository) Create(ctx context.Context, report *domain.ReportFile) error {
	id, err := r.store.Insert(ctx, ReportsCollection, report.ID, map[string]any{
		"name":       report.Name,
		"size":       report.Size,
		"url":        report.URL,
		"uploadedBy": report.UploadedBy,
		"createdAt":  formatTime(report.CreatedAt),
	})
	if err != nil {
		return err
	}
	report.ID = id
	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, id string) (*domain.ReportFile, error) {
	rec, err := r.store.GetOne(ctx, ReportsCollection, id)
	if err != nil {
		return nil, err
	}
	report := decodeReport(rec)
	return &report, nil
}

// List returns reports newest first.
func (r *reportRepository) List(ctx context.Context) ([]domain.ReportFile, error) {
	recs, err := r.store.Find(ctx, docstore.Query{
		Collection: ReportsCollection,
		OrderBy:    []docstore.Order{{Field: "createdAt", Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	reports := make([]domain.ReportFile, 0, len(recs))
	for _, rec := range recs {
		reports = append(reports, decodeReport(rec))
	}
	return reports, nil
}

func (r *reportRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, ReportsCollection, id)
}

func decodeReport(rec docstore.Record) domain.ReportFile {
	return domain.ReportFile{
		ID:         rec.ID,
		Name:       stringField(rec.Fields, "name"),
		Size:       stringField(rec.Fields, "size"),
		URL:        stringField(rec.Fields, "url"),
		UploadedBy: stringField(rec.Fields, "uploadedBy"),
		CreatedAt:  timeField(rec.Fields, "createdAt"),
	}
}
