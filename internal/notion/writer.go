package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/MrWong99/dictaflow/internal/analyze"
	"github.com/MrWong99/dictaflow/internal/parse"
	"github.com/MrWong99/dictaflow/internal/resilience"
)

// maxBlockChars keeps paragraph blocks under the store's 2000-character
// limit with a 200-character safety margin.
const maxBlockChars = 1800

// CreateEntry commits one record as a page in the tasks or notes database
// and returns the created page ID.
func (c *Client) CreateEntry(ctx context.Context, rec *analyze.Record) (string, error) {
	req := c.buildCreateRequest(rec)
	page, err := resilience.DoWithResult(c.retry, ctx, "store create", func() (*notionapi.Page, error) {
		return c.pages.Create(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("notion: create %s entry %q: %w", rec.Category(), rec.Title, err)
	}
	return string(page.ID), nil
}

func (c *Client) buildCreateRequest(rec *analyze.Record) *notionapi.PageCreateRequest {
	dbID := c.notesDB
	if rec.Category() == parse.CategoryTask {
		dbID = c.tasksDB
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: richText(rec.Title),
		},
		"Manual Review": notionapi.CheckboxProperty{
			Checkbox: rec.ManualReview,
		},
		"Confidence": notionapi.NumberProperty{
			Number: rec.Confidence,
		},
	}
	if len(rec.Tags) > 0 {
		opts := make([]notionapi.Option, len(rec.Tags))
		for i, tag := range rec.Tags {
			opts[i] = notionapi.Option{Name: tag}
		}
		props["Tags"] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}
	if rec.ProjectID != "" {
		props["Project"] = notionapi.RelationProperty{
			Relation: []notionapi.Relation{{ID: notionapi.PageID(rec.ProjectID)}},
		}
	}

	if task := rec.Task(); task != nil {
		props["Duration"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(task.Duration)},
		}
		props["Estimated Minutes"] = notionapi.NumberProperty{
			Number: float64(task.EstimatedMinutes),
		}
		if !task.DueDate.IsZero() {
			due := notionapi.Date(task.DueDate)
			props["Due Date"] = notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &due},
			}
		}
	} else {
		props["AI Enhanced"] = notionapi.CheckboxProperty{Checkbox: rec.AIEnhanced}
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
		Children:   contentBlocks(rec.Content),
	}
	if rec.Icon != "" {
		emoji := notionapi.Emoji(rec.Icon)
		req.Icon = &notionapi.Icon{Type: "emoji", Emoji: &emoji}
	}
	return req
}

// contentBlocks splits content into paragraph blocks of at most
// maxBlockChars, breaking on word boundaries.
func contentBlocks(content string) []notionapi.Block {
	var blocks []notionapi.Block
	for _, chunk := range chunkText(content, maxBlockChars) {
		blocks = append(blocks, notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeParagraph,
			},
			Paragraph: notionapi.Paragraph{
				RichText: richText(chunk),
			},
		})
	}
	return blocks
}

// chunkText splits text into pieces of at most limit characters, cutting at
// the last whitespace before the limit so words stay whole and interior
// formatting survives. A single over-long word is split hard.
func chunkText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexAny(text[:limit+1], " \t\n")
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimLeft(text[cut:], " \t\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: content}}}
}
