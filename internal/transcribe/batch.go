// Package transcribe drives Stage 3: staging, batched parallel transcription
// through the backend chain, resource throttling, and failure routing.
package transcribe

import (
	"sort"

	"github.com/MrWong99/dictaflow/internal/detect"
)

// Batch is one duration-balanced unit of transcription work. Batches are
// processed strictly in order; files within a batch run on the worker pool.
type Batch struct {
	Files []detect.AudioSource
}

// Minutes returns the summed estimated duration of the batch.
func (b Batch) Minutes() float64 {
	var total float64
	for _, f := range b.Files {
		total += f.EstimatedMinutes
	}
	return total
}

// Planner packs audio files into duration-balanced batches.
//
// A fixed files-per-batch split would let one long recording dominate a
// batch's wall clock; balancing on audio-minutes keeps per-batch latency
// predictable.
type Planner struct {
	// BudgetMinutes is the target audio-minutes of work per batch.
	BudgetMinutes float64

	// MaxFiles is the hard cap on files per batch.
	MaxFiles int
}

// Plan sorts files longest-first and packs them first-fit: each file goes
// into the earliest batch with budget and cap headroom, or opens a new one.
// Every input file lands in exactly one batch; a single file longer than
// the whole budget still gets its own.
func (p Planner) Plan(files []detect.AudioSource) []Batch {
	if len(files) == 0 {
		return nil
	}
	budget := p.BudgetMinutes
	if budget <= 0 {
		budget = 7
	}
	maxFiles := p.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 4
	}

	sorted := make([]detect.AudioSource, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EstimatedMinutes > sorted[j].EstimatedMinutes
	})

	// First fit over the sorted list: a short file placed after a long one
	// still tops up an earlier batch with budget left, instead of opening
	// a new batch of its own.
	var (
		batches []Batch
		used    []float64
	)
	for _, f := range sorted {
		placed := false
		for i := range batches {
			if len(batches[i].Files) >= maxFiles {
				continue
			}
			if used[i]+f.EstimatedMinutes > budget {
				continue
			}
			batches[i].Files = append(batches[i].Files, f)
			used[i] += f.EstimatedMinutes
			placed = true
			break
		}
		if !placed {
			batches = append(batches, Batch{Files: []detect.AudioSource{f}})
			used = append(used, f.EstimatedMinutes)
		}
	}
	return batches
}
