package export

import (
	"context"
	"time"

	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/models"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks github.com/tejusbharadwaj/univers/internal/export Source

// Source is the device-data API the pipeline reads from. *api.Client
// implements it; tests substitute a mock.
type Source interface {
	// ListModels enumerates the project's models. An empty slice is not an error.
	ListModels(ctx context.Context) ([]models.ModelDescriptor, error)

	// FetchPoints returns the rows of one model in [start, end), sorted by
	// timestamp then asset id.
	FetchPoints(ctx context.Context, model models.ModelDescriptor, start, end time.Time, intervalMinutes int) ([]models.DataRow, error)
}

// SourceFactory builds the Source for a project.
type SourceFactory func(project config.ProjectConfig) (Source, error)
