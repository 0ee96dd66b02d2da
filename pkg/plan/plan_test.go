package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_AutoPartSize(t *testing.T) {
	tests := []struct {
		name   string
		size   int64
		wantMB int64
	}{
		{"empty file", 0, AutoFloorMB},
		{"1 MiB", 1 * MiB, AutoFloorMB},
		{"100 MiB", 100 * MiB, AutoFloorMB},
		{"10 GiB", 10 * 1024 * MiB, AutoFloorMB},
		{"500 GiB", 500 * 1024 * MiB, 171},
		{"20 TiB clamps", 20 * 1024 * 1024 * MiB, MaxPartSizeMB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Compute(tt.size, DefaultOverrides())
			assert.Equal(t, tt.wantMB*MiB, p.PartSizeBytes)
		})
	}
}

func TestCompute_PartSizeBoundsAndCount(t *testing.T) {
	minThreshold := int64(MinPartSizeMB) * MiB
	for _, size := range []int64{1 * MiB, 100 * MiB, 10 * 1024 * MiB, 3 * 1024 * 1024 * MiB} {
		p := Compute(size, DefaultOverrides())
		assert.GreaterOrEqual(t, p.PartSizeBytes, int64(MinPartSizeMB)*MiB)
		assert.LessOrEqual(t, p.PartSizeBytes, int64(MaxPartSizeMB)*MiB)
		if size > minThreshold {
			assert.LessOrEqual(t, p.Parts(size), int64(TargetParts), "size %d", size)
		}
	}
}

func TestCompute_FixedPartSizeClamped(t *testing.T) {
	assert.Equal(t, 16*MiB, Compute(1, Overrides{PartSizeMB: 16}).PartSizeBytes)
	assert.Equal(t, int64(MinPartSizeMB)*MiB, Compute(1, Overrides{PartSizeMB: 1}).PartSizeBytes)
	assert.Equal(t, int64(MaxPartSizeMB)*MiB, Compute(1, Overrides{PartSizeMB: 9000}).PartSizeBytes)
}

func TestCompute_Concurrency(t *testing.T) {
	p := Compute(MiB, DefaultOverrides())
	assert.Equal(t, DefaultConcurrency, p.Concurrency)
	assert.True(t, p.UseParallelism)
	assert.Equal(t, DefaultConcurrency, p.Workers())

	p = Compute(MiB, Overrides{Concurrency: 12, UseThreads: true})
	assert.Equal(t, 12, p.Workers())

	p = Compute(MiB, Overrides{Concurrency: 12, UseThreads: false})
	assert.False(t, p.UseParallelism)
	assert.Equal(t, 1, p.Workers())

	p = Compute(MiB, Overrides{Concurrency: -3, UseThreads: true})
	assert.Equal(t, DefaultConcurrency, p.Concurrency)
}

func TestFallback(t *testing.T) {
	size := 10 * 1024 * MiB

	p := Fallback(size, DefaultOverrides())
	assert.Equal(t, int64(AutoFloorMB)*MiB, p.PartSizeBytes)
	assert.Equal(t, 1, p.Concurrency)
	assert.False(t, p.UseParallelism)
	assert.Equal(t, 1, p.Workers())

	bumped := Fallback(size, Overrides{UseThreads: true, FallbackBump: true})
	assert.Equal(t, int64(2*AutoFloorMB)*MiB, bumped.PartSizeBytes)

	fixed := Fallback(size, Overrides{PartSizeMB: 4000, FallbackBump: true})
	assert.Equal(t, int64(MaxPartSizeMB)*MiB, fixed.PartSizeBytes, "bump is re-clamped")
}

func TestPlan_MultipartAndParts(t *testing.T) {
	p := Plan{PartSizeBytes: 10}
	assert.False(t, p.Multipart(10))
	assert.True(t, p.Multipart(11))
	assert.Equal(t, int64(1), p.Parts(0))
	assert.Equal(t, int64(1), p.Parts(10))
	assert.Equal(t, int64(2), p.Parts(11))
}
