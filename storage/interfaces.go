package storage

import (
	"context"
	"time"

	"open-dio/models"
)

// Publication is one compiled multiplier table as published by a build.
type Publication struct {
	BuildID      string
	ModelVersion string
	CreatedAt    time.Time
	Categories   []models.ImpactCategory
	Table        models.MultiplierTable
	Report       *models.BuildReport
}

// MultiplierWriter is the interface any artifact backend must satisfy.
type MultiplierWriter interface {
	Write(ctx context.Context, pub *Publication) error
	Close() error
}

// MultiplierReader loads the most recently published table.
type MultiplierReader interface {
	FetchLatest(ctx context.Context) (*Publication, error)
}
