package tagging

import (
	"sort"
	"strings"

	"github.com/relaydesk/backend/internal/types"
)

const (
	// DefaultExpectedMatches is the keyword hit count treated as full confidence
	DefaultExpectedMatches = 2

	// ConfidenceFloor discards weak tag candidates
	ConfidenceFloor = 0.15

	// MaxDetectedTags caps the candidates attached to a conversation
	MaxDetectedTags = 4
)

// Detect scans accumulated user-authored text against the catalog's keyword
// lists and returns tag candidates with confidence, sorted descending.
// Synchronous and side-effect free; re-run as new messages arrive.
func Detect(text string, catalog *Catalog) []types.DetectedTag {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var detected []types.DetectedTag
	for _, tag := range catalog.List() {
		matches := 0
		for _, keyword := range tag.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(keyword)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}

		expected := tag.ExpectedMatches
		if expected <= 0 {
			expected = DefaultExpectedMatches
		}
		confidence := float64(matches) / float64(expected)
		if confidence > 1.0 {
			confidence = 1.0
		}
		if confidence < ConfidenceFloor {
			continue
		}

		detected = append(detected, types.DetectedTag{
			TagID:      tag.ID,
			Confidence: confidence,
		})
	}

	// Stable order: confidence desc, tag ID asc for equal confidence
	sort.SliceStable(detected, func(i, j int) bool {
		if detected[i].Confidence == detected[j].Confidence {
			return detected[i].TagID < detected[j].TagID
		}
		return detected[i].Confidence > detected[j].Confidence
	})

	if len(detected) > MaxDetectedTags {
		detected = detected[:MaxDetectedTags]
	}
	return detected
}
