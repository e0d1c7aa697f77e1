package graph

import (
	"context"
	"log/slog"
	"net/url"
)

// siteResponse mirrors the Graph API site JSON.
type siteResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// SearchSites returns every site matching query, across all result pages.
// The search is fuzzy; callers that need one site must match on
// DisplayName themselves.
func (c *Client) SearchSites(ctx context.Context, query string) ([]Site, error) {
	c.logger.Info("searching sites", slog.String("query", query))

	raw, err := getCollection[siteResponse](ctx, c, "/sites?search="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	sites := make([]Site, 0, len(raw))
	for _, s := range raw {
		sites = append(sites, Site(s))
	}

	c.logger.Debug("site search complete",
		slog.String("query", query),
		slog.Int("count", len(sites)),
	)

	return sites, nil
}
