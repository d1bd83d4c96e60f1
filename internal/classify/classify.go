// Package classify decides whether a feed-delivered item's content is full,
// partial, or of unknown completeness, so the sync orchestrator knows
// which items are worth sending to the extractor.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/umbrarelay/umbrarelay/internal/ingest"
	"github.com/umbrarelay/umbrarelay/internal/store"
)

var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	linkRe    = regexp.MustCompile(`(?s)<a[^>]*>.*?</a>`)
)

// Confidence is advisory context attached to a Result; nothing in the store
// depends on it today, but it is surfaced so a future debugging view can
// explain a completeness verdict without recomputing it.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the classifier's verdict plus a human-readable reason.
type Result struct {
	Completeness store.Completeness
	Confidence   Confidence
	Reason       string
}

// Classify runs the nine-rule decision ladder against an ingested item's
// content_html and summary. It is a pure function: identical input always
// yields an identical Result, with no I/O.
func Classify(item ingest.IngestedItem) Result {
	contentHTML := item.ContentHTML
	summary := item.Summary

	contentLength := len(contentHTML)
	summaryLength := len(summary)

	hasHTMLTags := strings.Contains(contentHTML, "<") && strings.Contains(contentHTML, ">")
	htmlTagCount := 0
	if hasHTMLTags {
		htmlTagCount = len(htmlTagRe.FindAllString(contentHTML, -1))
	}

	isCDATAOnly := strings.HasPrefix(contentHTML, "<![CDATA[") && len(contentHTML) < 200
	summaryIsCDATA := strings.HasPrefix(summary, "<![CDATA[") && len(summary) < 200

	isMostlyLink := false
	if contentLength > 0 {
		linkTextLength := 0
		for _, m := range linkRe.FindAllString(contentHTML, -1) {
			linkTextLength += len(m)
		}
		isMostlyLink = linkTextLength > 0 && float64(linkTextLength)/float64(contentLength) > 0.7
	}

	hasURL := item.URL != ""

	var contentSummaryRatio float64
	switch {
	case summaryLength > 0:
		contentSummaryRatio = float64(contentLength) / float64(summaryLength)
	case contentLength > 0:
		contentSummaryRatio = 10.0
	}

	switch {
	case contentLength > 500 && hasHTMLTags && htmlTagCount > 5:
		return Result{
			Completeness: store.CompletenessFull,
			Confidence:   ConfidenceHigh,
			Reason:       fmt.Sprintf("content has %d characters with substantial HTML structure (%d tags)", contentLength, htmlTagCount),
		}

	case isCDATAOnly || summaryIsCDATA || isMostlyLink:
		return Result{
			Completeness: store.CompletenessPartial,
			Confidence:   ConfidenceHigh,
			Reason:       fmt.Sprintf("content is CDATA-only or mostly links (%d chars), will fetch from canonical url", contentLength),
		}

	case contentLength < 100 && summaryLength > 0:
		return Result{
			Completeness: store.CompletenessPartial,
			Confidence:   ConfidenceHigh,
			Reason:       fmt.Sprintf("content is very short (%d chars) and summary exists (%d chars)", contentLength, summaryLength),
		}

	case hasURL && contentLength < 150 && (contentLength == 0 || isCDATAOnly):
		return Result{
			Completeness: store.CompletenessPartial,
			Confidence:   ConfidenceHigh,
			Reason:       fmt.Sprintf("url available but content is minimal/empty (%d chars), should fetch", contentLength),
		}

	case contentLength == 0 && summaryLength > 0:
		return Result{
			Completeness: store.CompletenessPartial,
			Confidence:   ConfidenceMedium,
			Reason:       fmt.Sprintf("no content_html found, only summary (%d chars)", summaryLength),
		}

	case contentLength > 300 && summaryLength == 0 && hasHTMLTags:
		return Result{
			Completeness: store.CompletenessFull,
			Confidence:   ConfidenceMedium,
			Reason:       fmt.Sprintf("content has %d characters with HTML structure, no summary", contentLength),
		}

	case contentSummaryRatio > 3.0 && contentLength > 200:
		return Result{
			Completeness: store.CompletenessFull,
			Confidence:   ConfidenceMedium,
			Reason:       fmt.Sprintf("content is %dx longer than summary (%d vs %d chars)", int(contentSummaryRatio), contentLength, summaryLength),
		}

	case contentLength > 0 && contentLength < 300:
		return Result{
			Completeness: store.CompletenessPartial,
			Confidence:   ConfidenceLow,
			Reason:       fmt.Sprintf("content exists but is short (%d chars), may be partial", contentLength),
		}

	default:
		return Result{
			Completeness: store.CompletenessUnknown,
			Confidence:   ConfidenceLow,
			Reason:       fmt.Sprintf("unable to determine completeness (content: %d chars, summary: %d chars)", contentLength, summaryLength),
		}
	}
}
