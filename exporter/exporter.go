package exporter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"storybot/models"
)

// ErrUnavailable means the exporter was never configured with credentials.
// Callers detect this once and short-circuit export attempts cheaply.
var ErrUnavailable = errors.New("document export is not available")

// Docs renders a finished story into a Google Doc and shares it by link.
type Docs struct {
	docs  *docs.Service
	drive *drive.Service
}

// New builds the exporter from service-account credentials JSON. An empty
// credentials string yields a non-nil but unavailable exporter, so the
// feature degrades instead of failing the process.
func New(ctx context.Context, credentialsJSON string) (*Docs, error) {
	if credentialsJSON == "" {
		log.Println("Warning: Google credentials not set, export feature will be disabled")
		return &Docs{}, nil
	}

	docsService, err := docs.NewService(ctx,
		option.WithCredentialsJSON([]byte(credentialsJSON)),
		option.WithScopes(docs.DocumentsScope, drive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("docs service: %w", err)
	}

	driveService, err := drive.NewService(ctx,
		option.WithCredentialsJSON([]byte(credentialsJSON)),
		option.WithScopes(drive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	log.Println("Google Docs exporter initialized")
	return &Docs{docs: docsService, drive: driveService}, nil
}

// Available reports whether export is configured.
func (d *Docs) Available() bool {
	return d.docs != nil
}

// ExportStory creates a new Google Doc containing the story metadata, title
// and full text, applies the inline-markup styling, shares the document by
// link and returns its URL. A sharing failure after the document exists still
// returns the direct link. Each call creates a fresh document; idempotence is
// the caller's job.
func (d *Docs) ExportStory(ctx context.Context, story *models.Story, contributions []models.Contribution) (string, error) {
	if !d.Available() {
		return "", ErrUnavailable
	}

	title := story.Title
	if title == "" {
		title = "Untitled Story"
	}

	doc, err := d.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	docID := doc.DocumentId
	docURL := fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)

	requests := buildRequests(story, contributions, title)
	if _, err := d.docs.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{
		Requests: requests,
	}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("write document content: %w", err)
	}

	// Make the document readable by anyone with the link. If sharing fails
	// the document still exists, so hand back the direct link.
	if _, err := d.drive.Permissions.Create(docID, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do(); err != nil {
		log.Printf("[EXPORT] Document created but sharing failed for %s: %v", docID, err)
	}

	return docURL, nil
}

// buildRequests assembles the batch of insert and style requests. Inserts run
// in document order, so each later insertion point accounts for the clean
// text already placed before it.
func buildRequests(story *models.Story, contributions []models.Contribution, title string) []*docs.Request {
	var requests []*docs.Request

	metaText := metadataText(story, contributions)
	cleanMeta, metaRanges := ParseMarkup(metaText)

	// Document bodies start at index 1.
	metaStart := int64(1)
	requests = append(requests, &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: metaStart},
			Text:     cleanMeta,
		},
	})
	requests = append(requests, styleRequests(metaRanges, metaStart)...)

	titleStart := metaStart + int64(utf8.RuneCountInString(cleanMeta))
	titleText := title + "\n\n"
	requests = append(requests, &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: titleStart},
			Text:     titleText,
		},
	})

	bodyStart := titleStart + int64(utf8.RuneCountInString(titleText))
	cleanBody, bodyRanges := ParseMarkup(story.FinalText)
	requests = append(requests, &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: bodyStart},
			Text:     cleanBody,
		},
	})
	requests = append(requests, styleRequests(bodyRanges, bodyStart)...)

	// Title formatting: bold 22pt, centered.
	titleEnd := titleStart + int64(utf8.RuneCountInString(title))
	requests = append(requests,
		&docs.Request{
			UpdateTextStyle: &docs.UpdateTextStyleRequest{
				Range: &docs.Range{StartIndex: titleStart, EndIndex: titleEnd},
				TextStyle: &docs.TextStyle{
					Bold:     true,
					FontSize: &docs.Dimension{Magnitude: 22, Unit: "PT"},
				},
				Fields: "bold,fontSize",
			},
		},
		&docs.Request{
			UpdateParagraphStyle: &docs.UpdateParagraphStyleRequest{
				Range:          &docs.Range{StartIndex: titleStart, EndIndex: titleEnd},
				ParagraphStyle: &docs.ParagraphStyle{Alignment: "CENTER"},
				Fields:         "alignment",
			},
		},
	)

	return requests
}

func styleRequests(ranges []StyleRange, base int64) []*docs.Request {
	requests := make([]*docs.Request, 0, len(ranges))
	for _, r := range ranges {
		style := &docs.TextStyle{}
		switch r.Style {
		case "bold":
			style.Bold = true
		case "italic":
			style.Italic = true
		case "underline":
			style.Underline = true
		}
		requests = append(requests, &docs.Request{
			UpdateTextStyle: &docs.UpdateTextStyleRequest{
				Range: &docs.Range{
					StartIndex: base + int64(r.Start),
					EndIndex:   base + int64(r.End),
				},
				TextStyle: style,
				Fields:    r.Style,
			},
		})
	}
	return requests
}

func metadataText(story *models.Story, contributions []models.Contribution) string {
	started := story.StartedAt.Format("2006-01-02")
	ended := ""
	if story.EndedAt != nil {
		ended = story.EndedAt.Format("2006-01-02")
	}

	seen := make(map[string]bool)
	var authors []string
	for _, c := range contributions {
		if !seen[c.DisplayName] {
			seen[c.DisplayName] = true
			authors = append(authors, c.DisplayName)
		}
	}

	return fmt.Sprintf("**Started:** %s\n**Completed:** %s\n\n**Authors:** %s\n\n",
		started, ended, strings.Join(authors, ", "))
}
