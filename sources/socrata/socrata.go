// Package socrata queries SODA 2.x datasets published on state open-data
// portals.
package socrata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
)

// Dataset is one SODA resource, e.g. https://data.ny.gov + n9v6-gdp6.
type Dataset struct {
	API      *engine.APIClient
	BaseURL  string
	ID       string
	AppToken string
}

func (d Dataset) endpoint() string {
	return strings.TrimRight(d.BaseURL, "/") + "/resource/" + d.ID + ".json"
}

func (d Dataset) headers() map[string]string {
	if d.AppToken == "" {
		return nil
	}
	return map[string]string{"X-App-Token": d.AppToken}
}

// Rows fetches up to limit rows matching where, ordered by order, into out.
func (d Dataset) Rows(ctx context.Context, where, order string, limit int, out any) error {
	params := map[string]string{
		"$where": where,
		"$limit": strconv.Itoa(limit),
	}
	if order != "" {
		params["$order"] = order
	}
	return d.API.GetJSON(ctx, engine.APIRequest{URL: d.endpoint(), Params: params, Headers: d.headers()}, out)
}

// Count returns how many rows match where.
func (d Dataset) Count(ctx context.Context, where string) (int, error) {
	var rows []struct {
		Count string `json:"count"`
	}
	err := d.API.GetJSON(ctx, engine.APIRequest{
		URL:     d.endpoint(),
		Params:  map[string]string{"$select": "count(*) AS count", "$where": where},
		Headers: d.headers(),
	}, &rows)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(rows[0].Count)
	if err != nil {
		return 0, models.NewScrapeError(models.ErrCodeParseFailure, "count "+rows[0].Count, err)
	}
	return n, nil
}

// Like builds a case-insensitive substring predicate on field.
func Like(field, term string) string {
	term = strings.ToUpper(strings.Join(strings.Fields(term), " "))
	term = strings.ReplaceAll(term, "'", "''")
	term = strings.NewReplacer("%", "", "_", "").Replace(term)
	return fmt.Sprintf("upper(%s) like '%%%s%%'", field, term)
}

// Limit returns the row cap to request for a query. The pipeline ranks and
// truncates, so a little headroom surfaces better matches.
func Limit(q models.Query) int {
	n := q.Limit
	if n <= 0 {
		n = models.DefaultLimit
	}
	n *= 2
	if n > 1000 {
		n = 1000
	}
	return n
}
