// ABOUTME: Buffering heuristic estimating when playback can run to completion
// ABOUTME: Extrapolates full duration and remaining download time from partial data
package clip

import "time"

// bufferingHeuristic decides when enough audio is buffered to play through
// without stalling. It latches: once triggered it is never re-evaluated.
type bufferingHeuristic struct {
	// safetyFactor inflates the estimated remaining download time to
	// absorb bitrate fluctuation.
	safetyFactor float64

	triggered bool
}

func newBufferingHeuristic(safetyFactor float64) *bufferingHeuristic {
	return &bufferingHeuristic{safetyFactor: safetyFactor}
}

// evaluate re-runs the estimate from the current partial view of the
// stream and reports whether playback can now start. decodedDuration and
// decodedBytes cover the leading run of chunks with known durations.
// Returns true forever after the first true.
func (h *bufferingHeuristic) evaluate(decodedDuration float64, decodedBytes, downloadedBytes, totalBytes int64, elapsed time.Duration) bool {
	if h.triggered {
		return true
	}
	// No data or unknown content length: cannot estimate, never trigger.
	if decodedDuration <= 0 || decodedBytes <= 0 || totalBytes <= 0 || downloadedBytes <= 0 {
		return false
	}
	elapsedSec := elapsed.Seconds()
	if elapsedSec <= 0 {
		return false
	}

	// Linear extrapolation from the observed bytes-to-duration ratio.
	estimatedDuration := decodedDuration * (float64(totalBytes) / float64(decodedBytes))

	downloadRate := float64(downloadedBytes) / elapsedSec
	remainingDownload := h.safetyFactor * float64(totalBytes-downloadedBytes) / downloadRate

	availablePlayable := (float64(decodedBytes) / float64(totalBytes)) * estimatedDuration

	if availablePlayable > remainingDownload {
		h.triggered = true
	}
	return h.triggered
}
