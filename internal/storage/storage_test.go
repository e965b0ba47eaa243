package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStorageInfo_Node(t *testing.T) {
	s := NewService(t.TempDir())

	info, err := s.GetStorageInfo(context.Background(), models.InstanceNode)

	require.NoError(t, err)
	assert.Positive(t, info.Total)
	assert.LessOrEqual(t, info.Used, info.Total)
	assert.GreaterOrEqual(t, info.Percentage, 0.0)
	assert.LessOrEqual(t, info.Percentage, 100.0)
}

func TestGetStorageInfo_UnsupportedKinds(t *testing.T) {
	s := NewService("")
	for _, kind := range []models.InstanceType{models.InstanceBrowser, models.InstanceMobile} {
		_, err := s.GetStorageInfo(context.Background(), kind)
		assert.ErrorIs(t, err, ErrUnsupported, kind)
	}
}

func TestGetStorageInfo_ProbeFailure(t *testing.T) {
	s := NewService("/data")
	s.usage = func(context.Context, string) (*disk.UsageStat, error) {
		return nil, errors.New("no such device")
	}

	_, err := s.GetStorageInfo(context.Background(), models.InstanceNode)
	assert.ErrorContains(t, err, "/data")
}

func TestGetStorageInfo_CancelledContext(t *testing.T) {
	s := NewService("/data")
	s.usage = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Total: 10, Used: 5, UsedPercent: 50}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetStorageInfo(ctx, models.InstanceNode)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetStorageInfo_MapsUsage(t *testing.T) {
	s := NewService("/data")
	var gotPath string
	s.usage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		gotPath = path
		return &disk.UsageStat{Total: 200, Used: 50, UsedPercent: 25}, nil
	}

	info, err := s.GetStorageInfo(context.Background(), models.InstanceNode)
	require.NoError(t, err)
	assert.Equal(t, "/data", gotPath)
	assert.Equal(t, models.StorageInfo{Used: 50, Total: 200, Percentage: 25}, info)
}
