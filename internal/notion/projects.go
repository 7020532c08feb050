package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/MrWong99/dictaflow/internal/catalog"
	"github.com/MrWong99/dictaflow/internal/resilience"
)

// activeStatuses are the project states worth matching against. Anything
// else (Done, Cancelled) never receives new entries.
var activeStatuses = []string{"In progress", "Ongoing", "Backlog", "On Hold"}

// Compile-time assertion that Client implements catalog.Fetcher.
var _ catalog.Fetcher = (*Client)(nil)

// FetchProjects queries the projects database for active, non-archived
// projects. Pagination is followed to the end.
func (c *Client) FetchProjects(ctx context.Context) ([]catalog.Project, error) {
	var filters notionapi.OrCompoundFilter
	for _, status := range activeStatuses {
		filters = append(filters, notionapi.PropertyFilter{
			Property: "Status",
			Select:   &notionapi.SelectFilterCondition{Equals: status},
		})
	}

	var (
		projects []catalog.Project
		cursor   notionapi.Cursor
	)
	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter:      filters,
			StartCursor: cursor,
		}
		resp, err := resilience.DoWithResult(c.retry, ctx, "store query projects", func() (*notionapi.DatabaseQueryResponse, error) {
			return c.dbs.Query(ctx, notionapi.DatabaseID(c.projectsDB), req)
		})
		if err != nil {
			return nil, fmt.Errorf("notion: query projects: %w", err)
		}

		for _, page := range resp.Results {
			if page.Archived {
				continue
			}
			if p, ok := projectFromPage(page); ok {
				projects = append(projects, p)
			}
		}
		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return projects, nil
}

func projectFromPage(page notionapi.Page) (catalog.Project, bool) {
	p := catalog.Project{ID: string(page.ID)}

	for _, prop := range page.Properties {
		switch v := prop.(type) {
		case *notionapi.TitleProperty:
			p.Name = plainText(v.Title)
		case *notionapi.SelectProperty:
			p.Status = v.Select.Name
		case *notionapi.RichTextProperty:
			// Aliases live in a comma-separated rich-text property.
			for _, alias := range strings.Split(plainText(v.RichText), ",") {
				if a := strings.TrimSpace(alias); a != "" {
					p.Aliases = append(p.Aliases, a)
				}
			}
		}
	}
	if p.Name == "" {
		return catalog.Project{}, false
	}
	return p, true
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}
