package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// searchRequest mirrors the regscout search request model.
type searchRequest struct {
	Query           string   `json:"query"`
	Sources         []string `json:"sources,omitempty"`
	SearchType      string   `json:"search_type,omitempty"`
	Limit           int      `json:"limit,omitempty"`
	Jurisdiction    string   `json:"jurisdiction,omitempty"`
	IncludeInactive bool     `json:"include_inactive,omitempty"`
	CurrentOnly     bool     `json:"current_only,omitempty"`
}

// sourceResult is the subset of a per-source result the tool prints.
type sourceResult struct {
	Success    bool              `json:"success"`
	TotalFound int               `json:"total_found"`
	Error      string            `json:"error"`
	Warnings   []string          `json:"warnings"`
	Data       []json.RawMessage `json:"data"`
}

// searchResponse mirrors the regscout search response model.
type searchResponse struct {
	ID         string                  `json:"id"`
	Query      string                  `json:"query"`
	SearchType string                  `json:"search_type"`
	TotalFound int                     `json:"total_found"`
	Successful []string                `json:"successful"`
	Failed     []string                `json:"failed"`
	Results    map[string]sourceResult `json:"results"`
	DurationMs int64                   `json:"duration_ms"`
}

type sourcesResponse struct {
	Sources []struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Jurisdiction string   `json:"jurisdiction"`
		Stages       []string `json:"stages"`
		SearchTypes  []string `json:"search_types"`
		ManualURL    string   `json:"manual_search_url"`
	} `json:"sources"`
}

type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("REGSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("REGSCOUT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "REGSCOUT_API_KEY is required")
		os.Exit(1)
	}

	client := resty.New().
		SetBaseURL(apiURL).
		SetHeader("X-API-Key", apiKey).
		SetTimeout(180 * time.Second)

	s := server.NewMCPServer(
		"regscout",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_registries",
		mcp.WithDescription("Search US business registries (OpenCorporates, NY and CO open data, Florida Sunbiz, California bizfile, Delaware ICIS) for companies or officers by name. Sources are queried together; a source that fails is reported without hiding the others."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Company or person name to look up"),
		),
		mcp.WithArray("sources",
			mcp.Description("Source ids to query (default: all). See list_sources."),
			mcp.WithStringItems(),
		),
		mcp.WithString("search_type",
			mcp.Description("'company' (default) or 'officer'"),
			mcp.Enum("company", "officer"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum records per source (default: 20, max: 200)"),
		),
		mcp.WithString("jurisdiction",
			mcp.Description("Narrow multi-jurisdiction sources, e.g. 'us_fl'"),
		),
		mcp.WithBoolean("include_inactive",
			mcp.Description("Keep dissolved and inactive companies (default: false)"),
		),
		mcp.WithBoolean("current_only",
			mcp.Description("Drop officers who have left their position (default: false)"),
		),
	)
	s.AddTool(searchTool, handleSearch(client))

	listTool := mcp.NewTool("list_sources",
		mcp.WithDescription("List the registry sources this server can query, with their acquisition stages and manual search URLs."),
	)
	s.AddTool(listTool, handleListSources(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleSearch(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}
		payload := searchRequest{
			Query:           query,
			Sources:         request.GetStringSlice("sources", nil),
			SearchType:      request.GetString("search_type", ""),
			Limit:           request.GetInt("limit", 0),
			Jurisdiction:    request.GetString("jurisdiction", ""),
			IncludeInactive: request.GetBool("include_inactive", false),
			CurrentOnly:     request.GetBool("current_only", false),
		}

		var out searchResponse
		var apiErr errorResponse
		resp, err := client.R().
			SetContext(ctx).
			SetBody(payload).
			SetResult(&out).
			SetError(&apiErr).
			Post("/api/v1/search")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		if resp.IsError() {
			return mcp.NewToolResultError(describeError(resp.StatusCode(), apiErr)), nil
		}
		return mcp.NewToolResultText(formatSearch(out)), nil
	}
}

func handleListSources(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var out sourcesResponse
		var apiErr errorResponse
		resp, err := client.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&apiErr).
			Get("/api/v1/sources")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		if resp.IsError() {
			return mcp.NewToolResultError(describeError(resp.StatusCode(), apiErr)), nil
		}

		var sb strings.Builder
		for _, src := range out.Sources {
			types := "none"
			if len(src.SearchTypes) > 0 {
				types = strings.Join(src.SearchTypes, ", ")
			}
			fmt.Fprintf(&sb, "%s: %s (%s)\n  stages: %s\n  search types: %s\n  manual search: %s\n",
				src.ID, src.Name, src.Jurisdiction, strings.Join(src.Stages, " → "), types, src.ManualURL)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func describeError(status int, e errorResponse) string {
	if e.Error != nil {
		return fmt.Sprintf("[%s] %s", e.Error.Code, e.Error.Message)
	}
	return fmt.Sprintf("API returned HTTP %d", status)
}

// formatSearch renders one block per source, successes first, with each
// record as compact JSON.
func formatSearch(r searchResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search %q (%s): %d found across %d sources, %d failed, %dms\n\n",
		r.Query, r.SearchType, r.TotalFound, len(r.Successful), len(r.Failed), r.DurationMs)

	ids := make([]string, 0, len(r.Results))
	for id := range r.Results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.Results[ids[i]], r.Results[ids[j]]
		if a.Success != b.Success {
			return a.Success
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		res := r.Results[id]
		if res.Success {
			fmt.Fprintf(&sb, "--- %s: %d records (total %d) ---\n", id, len(res.Data), res.TotalFound)
			for _, rec := range res.Data {
				sb.Write(rec)
				sb.WriteByte('\n')
			}
		} else {
			fmt.Fprintf(&sb, "--- %s: failed [%s] ---\n", id, res.Error)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(&sb, "  warning: %s\n", w)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
