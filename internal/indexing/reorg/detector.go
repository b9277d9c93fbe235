package reorg

import (
	"context"
	"fmt"

	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// Detector checks for chain reorganizations using parent hash verification.
type Detector struct {
	config Config
	blocks storage.HotBlockRepository
	fetch  HashFetcher
}

// ReorgInfo contains information about a detected reorganization.
type ReorgInfo struct {
	Detected   bool
	Depth      int
	FromHeight int64 // First orphaned height
	SafeHeight int64 // Last valid height
	SafeHash   string
}

// CheckParentHash verifies the new block's parent hash matches the stored
// hot block below it.
//
// Returns ReorgInfo with Detected=true if reorg found.
func (d *Detector) CheckParentHash(ctx context.Context, height int64, parentHash string) (*ReorgInfo, error) {
	if height <= 0 {
		return &ReorgInfo{Detected: false}, nil
	}

	prev := height - 1
	stored, err := d.blocks.Get(ctx, prev)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", prev, err)
	}

	// Not hot: either final or not applied yet
	if stored == nil {
		return &ReorgInfo{Detected: false}, nil
	}
	if stored.Hash == parentHash {
		return &ReorgInfo{Detected: false}, nil
	}

	safe, safeHash, err := d.findSafePoint(ctx, prev)
	if err != nil {
		return nil, fmt.Errorf("failed to find safe point: %w", err)
	}

	depth := int(prev - safe)
	metrics.ReorgsDetected.Inc()
	metrics.ReorgDepth.Observe(float64(depth))

	return &ReorgInfo{
		Detected:   true,
		Depth:      depth,
		FromHeight: safe + 1,
		SafeHeight: safe,
		SafeHash:   safeHash,
	}, nil
}

// findSafePoint walks back from an orphaned height to the highest block that
// is still on the canonical chain. Running off the bottom of the hot set
// yields the height just below it, which is final by definition.
func (d *Detector) findSafePoint(ctx context.Context, orphaned int64) (int64, string, error) {
	current := orphaned
	for depth := 1; ; depth++ {
		if depth > d.config.MaxDepth {
			return 0, "", fmt.Errorf("reorg depth exceeds %d blocks", d.config.MaxDepth)
		}
		if current <= 0 {
			return 0, "", nil
		}

		parent, err := d.blocks.Get(ctx, current-1)
		if err != nil {
			return 0, "", fmt.Errorf("failed to get block %d: %w", current-1, err)
		}
		if parent == nil {
			return current - 1, "", nil
		}

		if d.fetch != nil {
			canonical, err := d.fetch(ctx, parent.Height)
			if err != nil {
				return 0, "", fmt.Errorf("failed to fetch hash of %d: %w", parent.Height, err)
			}
			if canonical == parent.Hash {
				return parent.Height, parent.Hash, nil
			}
		} else {
			block, err := d.blocks.Get(ctx, current)
			if err != nil {
				return 0, "", fmt.Errorf("failed to get block %d: %w", current, err)
			}
			if block == nil || block.ParentHash == parent.Hash {
				return parent.Height, parent.Hash, nil
			}
		}

		current--
	}
}

// VerifyHash compares the stored hash at height with the canonical one.
// Heights that are not hot verify trivially.
func (d *Detector) VerifyHash(ctx context.Context, height int64) (bool, error) {
	if d.fetch == nil {
		return false, fmt.Errorf("no hash fetcher configured")
	}
	stored, err := d.blocks.Get(ctx, height)
	if err != nil {
		return false, fmt.Errorf("failed to get stored block: %w", err)
	}
	if stored == nil {
		return true, nil
	}

	hash, err := d.fetch(ctx, height)
	if err != nil {
		return false, fmt.Errorf("failed to fetch canonical hash: %w", err)
	}
	return stored.Hash == hash, nil
}
