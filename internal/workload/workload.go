// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workload sizes the scoring worker pool. Each worker holds its
// own copy of the ranking model, so the count follows available memory:
// one worker per 16 GiB, at least one.
package workload

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v4/mem"
)

// GiBPerWorker is the memory budget of one worker's model instance.
const GiBPerWorker = 16

const gib = 1 << 30

// totalMemory reports physical memory in bytes. Tests replace it.
var totalMemory = func(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// FromMemory returns ceil(totalBytes / 16 GiB), at least 1.
func FromMemory(totalBytes uint64) int {
	n := int(math.Ceil(float64(totalBytes) / gib / GiBPerWorker))
	if n < 1 {
		return 1
	}
	return n
}

// Resolve returns override when positive; otherwise it derives the count
// from system memory.
func Resolve(ctx context.Context, override int) (int, error) {
	if override > 0 {
		return override, nil
	}
	total, err := totalMemory(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading system memory: %w", err)
	}
	return FromMemory(total), nil
}
