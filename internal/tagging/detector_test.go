package tagging

import (
	"testing"

	"github.com/relaydesk/backend/internal/types"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog("tenant-1")
	tags := []types.Tag{
		{ID: "billing", Name: "Billing", Keywords: []string{"invoice", "refund", "charge"}, PriorityWeight: 2},
		{ID: "technical", Name: "Technical", Keywords: []string{"error", "crash", "bug"}, PriorityWeight: 3},
		{ID: "shipping", Name: "Shipping", Keywords: []string{"delivery", "tracking"}, PriorityWeight: 1},
	}
	for _, tag := range tags {
		if err := c.Put(tag); err != nil {
			t.Fatalf("put tag %s: %v", tag.ID, err)
		}
	}
	return c
}

func TestDetectKeywordConfidence(t *testing.T) {
	c := testCatalog(t)

	detected := Detect("I was charged twice, please refund my invoice", c)
	if len(detected) == 0 {
		t.Fatal("expected billing tag to be detected")
	}
	if detected[0].TagID != "billing" {
		t.Errorf("expected billing first, got %s", detected[0].TagID)
	}
	// 3 matches with expected 2 caps at 1.0
	if detected[0].Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %.2f", detected[0].Confidence)
	}
}

func TestDetectCaseInsensitive(t *testing.T) {
	c := testCatalog(t)

	detected := Detect("The app shows an ERROR and then a CRASH", c)
	if len(detected) != 1 || detected[0].TagID != "technical" {
		t.Fatalf("expected only technical, got %+v", detected)
	}
}

func TestDetectSortedByConfidence(t *testing.T) {
	c := testCatalog(t)

	// technical: 2 matches (1.0), shipping: 1 match (0.5)
	detected := Detect("error and crash after the delivery update", c)
	if len(detected) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(detected))
	}
	if detected[0].TagID != "technical" || detected[1].TagID != "shipping" {
		t.Errorf("expected [technical shipping], got [%s %s]", detected[0].TagID, detected[1].TagID)
	}
	if detected[1].Confidence != 0.5 {
		t.Errorf("expected shipping confidence 0.5, got %.2f", detected[1].Confidence)
	}
}

func TestDetectEmptyText(t *testing.T) {
	c := testCatalog(t)
	if got := Detect("", c); got != nil {
		t.Errorf("expected nil for empty text, got %+v", got)
	}
}

func TestDetectCapsCandidates(t *testing.T) {
	c := NewCatalog("tenant-1")
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	for _, w := range words {
		if err := c.Put(types.Tag{ID: w, Name: w, Keywords: []string{w, w}, PriorityWeight: 1, ExpectedMatches: 1}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	detected := Detect("alpha beta gamma delta epsilon zeta", c)
	if len(detected) != MaxDetectedTags {
		t.Errorf("expected cap of %d tags, got %d", MaxDetectedTags, len(detected))
	}
}

func TestDetectConfidenceFloor(t *testing.T) {
	c := NewCatalog("tenant-1")
	if err := c.Put(types.Tag{ID: "rare", Name: "Rare", Keywords: []string{"quux"}, PriorityWeight: 1, ExpectedMatches: 10}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// 1/10 = 0.1 is below the floor
	if got := Detect("quux", c); len(got) != 0 {
		t.Errorf("expected candidate below floor to be discarded, got %+v", got)
	}
}

func TestCatalogPutValidation(t *testing.T) {
	c := NewCatalog("tenant-1")

	if err := c.Put(types.Tag{Name: "x", PriorityWeight: 1}); err == nil {
		t.Error("expected error for missing id")
	}
	if err := c.Put(types.Tag{ID: "x", Name: "x", PriorityWeight: 0}); err == nil {
		t.Error("expected error for non-positive priority weight")
	}
}

func TestCatalogMaxPriorityWeight(t *testing.T) {
	c := testCatalog(t)

	detected := []types.DetectedTag{
		{TagID: "billing", Confidence: 0.5},
		{TagID: "technical", Confidence: 0.4},
		{TagID: "unknown", Confidence: 1.0},
	}
	if got := c.MaxPriorityWeight(detected); got != 3 {
		t.Errorf("expected max weight 3 (technical), got %g", got)
	}
	if got := c.MaxPriorityWeight(nil); got != 0 {
		t.Errorf("expected 0 for no tags, got %g", got)
	}
}
