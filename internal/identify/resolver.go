package identify

import (
	"image"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// Unknown is the terminal identity for a region that could not be resolved
// with sufficient confidence. It propagates downstream; it is never silently
// dropped.
const Unknown = "unknown"

// Resolved is the outcome of resolving one cropped region.
type Resolved struct {
	EntityID   string
	Confidence float64
	Box        image.Rectangle
	FrameSeq   uint64
}

// IsUnknown reports whether resolution fell below the match threshold.
func (r Resolved) IsUnknown() bool { return r.EntityID == Unknown }

// Resolver maps cropped regions to entity IDs via nearest-fingerprint lookup
// against the currently active manifest. For a fixed manifest version and
// fixed input bytes the result is identical across calls.
type Resolver struct {
	holder    *Holder
	threshold float64
}

// NewResolver creates a resolver over the holder's active manifest.
func NewResolver(holder *Holder, threshold float64) *Resolver {
	return &Resolver{holder: holder, threshold: threshold}
}

// Resolve fingerprints the crop and returns the single best manifest match,
// or Unknown when the best similarity does not clear the threshold.
func (r *Resolver) Resolve(crop image.Image, box image.Rectangle, frameSeq uint64) Resolved {
	out := Resolved{EntityID: Unknown, Box: box, FrameSeq: frameSeq}

	m := r.holder.Current()
	if m.Len() == 0 {
		return out
	}

	fp := Compute(crop)

	// Entries are sorted by entity id and scanned with a strict-greater
	// comparison, so ties resolve to the lexically first entity on every
	// call against the same manifest.
	best := -1.0
	bestID := Unknown
	for i := range m.Entries {
		e := &m.Entries[i]
		for _, ref := range e.Fingerprints {
			if sim := Similarity(fp, ref); sim > best {
				best = sim
				bestID = e.EntityID
			}
		}
	}

	out.Confidence = best
	if best >= r.threshold {
		out.EntityID = bestID
		logging.IdentifyDebug("resolved %s (similarity=%.4f, frame=%d)", bestID, best, frameSeq)
	} else {
		logging.IdentifyDebug("unresolved region (best=%s similarity=%.4f < %.4f, frame=%d)", bestID, best, r.threshold, frameSeq)
	}
	return out
}
