package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umbrarelay/umbrarelay/internal/ingest"
	"github.com/umbrarelay/umbrarelay/internal/store"
)

func TestClassify_PartialWhenContentIsJustAStub(t *testing.T) {
	item := ingest.IngestedItem{
		Summary:     "Short summary",
		ContentHTML: "Read more...",
		URL:         "http://x",
	}
	result := Classify(item)
	assert.Equal(t, store.CompletenessPartial, result.Completeness)
}

func TestClassify_FullWhenContentIsSubstantial(t *testing.T) {
	item := ingest.IngestedItem{
		Summary:     "x",
		ContentHTML: strings.Repeat("<p>This is a long article with substantial content. ", 20),
	}
	result := Classify(item)
	assert.Equal(t, store.CompletenessFull, result.Completeness)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
}

func TestClassify_PartialWhenOnlySummaryExists(t *testing.T) {
	item := ingest.IngestedItem{
		Summary:     "Summary only",
		ContentHTML: "",
		URL:         "http://example.com",
	}
	result := Classify(item)
	assert.Equal(t, store.CompletenessPartial, result.Completeness)
}

func TestClassify_PartialOnMostlyLinkContent(t *testing.T) {
	item := ingest.IngestedItem{
		ContentHTML: `<a href="http://example.com/a-very-long-link-target-used-to-pad-this-out">click here to read the whole thing</a>`,
	}
	result := Classify(item)
	assert.Equal(t, store.CompletenessPartial, result.Completeness)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
}

func TestClassify_UnknownWithNoSignal(t *testing.T) {
	result := Classify(ingest.IngestedItem{})
	assert.Equal(t, store.CompletenessUnknown, result.Completeness)
}

func TestClassify_IsDeterministic(t *testing.T) {
	item := ingest.IngestedItem{
		Summary:     "A summary of reasonable length describing the article contents.",
		ContentHTML: strings.Repeat("word ", 80),
		URL:         "http://example.com/article",
	}
	first := Classify(item)
	second := Classify(item)
	assert.Equal(t, first, second)
}
