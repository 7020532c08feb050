package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/MrWong99/dictaflow/internal/resilience"
)

// verifyAttemptTimeout caps each page-fetch attempt. The retry policy sits
// outside this cap, so a hung attempt cannot eat the whole budget.
const verifyAttemptTimeout = 10 * time.Second

// VerifyEntry confirms that a committed page really exists: the fetch must
// return a non-archived page with the same ID. Anything else fails
// verification and keeps the source audio on the recorder.
func (c *Client) VerifyEntry(ctx context.Context, pageID string) error {
	_, err := resilience.DoWithResult(c.retry, ctx, "store verify", func() (*notionapi.Page, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, verifyAttemptTimeout)
		defer cancel()

		page, err := c.pages.Get(attemptCtx, notionapi.PageID(pageID))
		if err != nil {
			return nil, err
		}
		if string(page.ID) != pageID {
			return nil, fmt.Errorf("page ID mismatch: got %q", page.ID)
		}
		if page.Archived {
			return nil, fmt.Errorf("page %q is archived", pageID)
		}
		return page, nil
	})
	if err != nil {
		return fmt.Errorf("notion: verify page %q: %w", pageID, err)
	}
	return nil
}
