package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/cvgram/internal/client"
	"github.com/kirillkom/cvgram/internal/core/domain"
)

const serverName = "cvgram"

// Catalog is the slice of the API client the tools need.
type Catalog interface {
	Search(ctx context.Context, keywords []string) (client.ListResult, error)
	ListMine(ctx context.Context, email string) (client.ListResult, error)
	DownloadURL(ctx context.Context, cvID string) (client.DownloadLink, error)
}

type Tools struct {
	catalog      Catalog
	defaultEmail string
}

// NewTools builds the tool handlers. defaultEmail is used by list_my_cvs
// when the call does not name an owner.
func NewTools(catalog Catalog, defaultEmail string) *Tools {
	return &Tools{catalog: catalog, defaultEmail: domain.NormalizeEmail(defaultEmail)}
}

func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("search_cvs",
		mcp.WithDescription("Search every CV in the catalog. Each keyword must appear as a substring of some CV keyword; no keywords lists all CVs."),
		mcp.WithString("keywords", mcp.Description("Comma separated keywords, for example \"python,aws\".")),
	), tools.SearchCvs)

	s.AddTool(mcp.NewTool("list_my_cvs",
		mcp.WithDescription("List the CVs uploaded by the authenticated user, newest first."),
		mcp.WithString("email", mcp.Description("Owner email. Defaults to the email of the configured token.")),
	), tools.ListMyCvs)

	s.AddTool(mcp.NewTool("get_download_url",
		mcp.WithDescription("Issue a short-lived download link for one CV."),
		mcp.WithString("cv_id", mcp.Required(), mcp.Description("Catalog id of the CV.")),
	), tools.GetDownloadURL)

	return s
}

func (t *Tools) SearchCvs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keywords := client.SplitInput(req.GetString("keywords", ""))
	res, err := t.catalog.Search(ctx, keywords)
	if err != nil {
		return toolError("search_cvs", err), nil
	}
	return jsonResult(res)
}

func (t *Tools) ListMyCvs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email := domain.NormalizeEmail(req.GetString("email", ""))
	if email == "" {
		email = t.defaultEmail
	}
	if email == "" {
		return mcp.NewToolResultError("email is required: the configured token carries no email claim"), nil
	}
	res, err := t.catalog.ListMine(ctx, email)
	if err != nil {
		return toolError("list_my_cvs", err), nil
	}
	return jsonResult(res)
}

func (t *Tools) GetDownloadURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cvID := strings.TrimSpace(req.GetString("cv_id", ""))
	if cvID == "" {
		return mcp.NewToolResultError("cv_id is required"), nil
	}
	link, err := t.catalog.DownloadURL(ctx, cvID)
	if err != nil {
		return toolError("get_download_url", err), nil
	}
	return jsonResult(link)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// toolError reports failures to the model as tool results instead of
// protocol errors.
func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp_tool_failed", "tool", tool, "error", err)
	switch {
	case domain.IsKind(err, domain.ErrForbidden):
		return mcp.NewToolResultError("only your own CVs can be listed")
	case domain.IsKind(err, domain.ErrUnauthorized):
		return mcp.NewToolResultError("the configured token was rejected by the catalog")
	case domain.IsKind(err, domain.ErrRecordNotFound):
		return mcp.NewToolResultError("no CV with that id")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
