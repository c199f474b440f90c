package services

import (
	domain "github.com/khobz-app/checkout/internal/domain"
)

// BranchDistance pairs a branch with its distance from the known location.
type BranchDistance struct {
	Branch     Branch
	DistanceKm float64
}

// BranchSelectionNotice is the one-time payload surfaced when a branch is
// selected automatically.
type BranchSelectionNotice struct {
	BranchID   string
	Title      domain.Text
	DistanceKm float64
}

// SelectionOutcome reports the result of a branch selection pass.
type SelectionOutcome struct {
	SelectedID string
	// Changed is true only when this pass performed an automatic selection.
	Changed bool
	Notice  *BranchSelectionNotice
}

// NearestBranch returns the candidate closest to the location, skipping
// inactive branches and branches without coordinates. ok is false when no
// distance could be computed at all.
func NearestBranch(branches []Branch, location LatLng) (Branch, float64, bool) {
	var (
		best     Branch
		bestDist = domain.DistanceUnknown
		found    bool
	)
	for _, branch := range branches {
		if !branch.Active {
			continue
		}
		dist := domain.DistanceKm(location, branch.Location)
		if dist == domain.DistanceUnknown {
			continue
		}
		if !found || dist < bestDist {
			best = branch
			bestDist = dist
			found = true
		}
	}
	return best, bestDist, found
}

// SelectBranch applies the sticky-selection rule: when a branch is already
// selected it is never overridden, even if a nearer one is now known; when
// none is selected the nearest candidate is picked and a one-time notice is
// produced. Distance display for an existing selection is the caller's
// concern via BranchDistances.
func SelectBranch(branches []Branch, currentID string, location LatLng) SelectionOutcome {
	if currentID != "" {
		return SelectionOutcome{SelectedID: currentID}
	}

	nearest, dist, ok := NearestBranch(branches, location)
	if !ok {
		// No usable location: fall back to the first active branch so pickup
		// checkout is not dead-ended.
		for _, branch := range branches {
			if branch.Active {
				return SelectionOutcome{
					SelectedID: branch.ID,
					Changed:    true,
					Notice: &BranchSelectionNotice{
						BranchID:   branch.ID,
						Title:      branch.Title,
						DistanceKm: domain.DistanceUnknown,
					},
				}
			}
		}
		return SelectionOutcome{}
	}

	return SelectionOutcome{
		SelectedID: nearest.ID,
		Changed:    true,
		Notice: &BranchSelectionNotice{
			BranchID:   nearest.ID,
			Title:      nearest.Title,
			DistanceKm: dist,
		},
	}
}

// BranchDistances computes the display distance for every branch against the
// known location, preserving input order.
func BranchDistances(branches []Branch, location LatLng) []BranchDistance {
	out := make([]BranchDistance, 0, len(branches))
	for _, branch := range branches {
		out = append(out, BranchDistance{
			Branch:     branch,
			DistanceKm: domain.DistanceKm(location, branch.Location),
		})
	}
	return out
}
