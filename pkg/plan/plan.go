// Package plan computes multipart transfer parameters for uploads.
//
// A Plan is derived per upload from the object size and the configured
// overrides; it is never persisted. Fallback produces the degraded plan used
// for the single retry after a failed attempt.
package plan

// MiB is one mebibyte, the unit of part sizes.
const MiB int64 = 1 << 20

const (
	// TargetParts is the part count the automatic sizing aims for.
	TargetParts = 3000

	// MinPartSizeMB is the smallest part size ever used.
	MinPartSizeMB = 8

	// AutoFloorMB is the minimum automatically chosen part size.
	AutoFloorMB = 64

	// MaxPartSizeMB stays just under the 5 GiB single-part ceiling.
	MaxPartSizeMB = 5120 - 8

	// DefaultConcurrency is the worker count when none is configured.
	DefaultConcurrency = 4
)

// Overrides carries the configured tuning knobs.
type Overrides struct {
	// PartSizeMB fixes the part size when > 0.
	PartSizeMB int

	// Concurrency fixes the worker count when > 0.
	Concurrency int

	// UseThreads enables parallel part uploads.
	UseThreads bool

	// FallbackBump doubles the part size in the fallback plan.
	FallbackBump bool
}

// DefaultOverrides returns the overrides used when nothing is configured.
func DefaultOverrides() Overrides {
	return Overrides{UseThreads: true}
}

// Plan holds the chunking and concurrency of one upload attempt.
type Plan struct {
	PartSizeBytes  int64
	Concurrency    int
	UseParallelism bool
}

// Workers returns the effective number of concurrent part uploads.
func (p Plan) Workers() int {
	if !p.UseParallelism || p.Concurrency < 1 {
		return 1
	}
	return p.Concurrency
}

// Multipart reports whether an object of size bytes needs more than one part.
func (p Plan) Multipart(size int64) bool {
	return size > p.PartSizeBytes
}

// Parts returns the number of parts an object of size bytes is split into.
func (p Plan) Parts(size int64) int64 {
	if size <= 0 || p.PartSizeBytes <= 0 {
		return 1
	}
	return (size + p.PartSizeBytes - 1) / p.PartSizeBytes
}

// Compute returns the plan for the first upload attempt.
func Compute(size int64, o Overrides) Plan {
	return Plan{
		PartSizeBytes:  clampMB(partSizeMB(size, o)) * MiB,
		Concurrency:    concurrency(o),
		UseParallelism: o.UseThreads,
	}
}

// Fallback returns the degraded plan for the single retry: one worker, and
// a doubled part size only when FallbackBump is set.
func Fallback(size int64, o Overrides) Plan {
	mb := partSizeMB(size, o)
	if o.FallbackBump {
		mb *= 2
	}
	return Plan{
		PartSizeBytes:  clampMB(mb) * MiB,
		Concurrency:    1,
		UseParallelism: false,
	}
}

func partSizeMB(size int64, o Overrides) int64 {
	if o.PartSizeMB > 0 {
		return int64(o.PartSizeMB)
	}
	if size < 0 {
		size = 0
	}
	perPart := size / TargetParts
	if size%TargetParts != 0 {
		perPart++
	}
	mb := (perPart + MiB - 1) / MiB
	mb = max(mb, MinPartSizeMB)
	return max(mb, AutoFloorMB)
}

func clampMB(mb int64) int64 {
	return min(max(mb, MinPartSizeMB), MaxPartSizeMB)
}

func concurrency(o Overrides) int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}
