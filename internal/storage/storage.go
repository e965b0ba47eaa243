package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/shirou/gopsutil/v3/disk"
)

// ErrUnsupported is returned for instance kinds whose storage this process
// cannot measure; those report it out of band.
var ErrUnsupported = errors.New("storage probe not supported for instance type")

type usageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// Service probes disk usage of the volume holding the node's data directory.
type Service struct {
	dataDir string
	usage   usageFunc
}

func NewService(dataDir string) *Service {
	if dataDir == "" {
		dataDir = "/"
	}
	return &Service{
		dataDir: dataDir,
		usage:   disk.UsageWithContext,
	}
}

func (s *Service) GetStorageInfo(ctx context.Context, kind models.InstanceType) (models.StorageInfo, error) {
	if kind != models.InstanceNode {
		return models.StorageInfo{}, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	stat, err := s.usage(ctx, s.dataDir)
	if err != nil {
		return models.StorageInfo{}, fmt.Errorf("disk usage for %s: %w", s.dataDir, err)
	}
	if err := ctx.Err(); err != nil {
		return models.StorageInfo{}, err
	}
	return models.StorageInfo{
		Used:       stat.Used,
		Total:      stat.Total,
		Percentage: stat.UsedPercent,
	}, nil
}
