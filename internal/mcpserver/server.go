// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes vault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/noteservice"
	"github.com/starford/paravault/internal/search"
)

const contractURI = "paravault://note-format"

// Server wraps the MCP server with vault tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all vault tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ParaVault",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	stringList := mcp.Items(map[string]any{"type": "string"})

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Ranked search over titles, tags and bodies. Every word of query must match. "+
			"Filters narrow the candidate set; query may be empty when at least one filter is given."),
		mcp.WithString("query", mcp.Description("Search text")),
		mcp.WithArray("tags", stringList, mcp.Description("Only notes carrying these tags")),
		mcp.WithString("tag_operator", mcp.Enum("and", "or"), mcp.Description("How tags combine (default and)")),
		mcp.WithString("category", mcp.Enum("projects", "areas", "resources", "archives")),
		mcp.WithString("modified_from", mcp.Description("RFC3339 time or YYYY-MM-DD")),
		mcp.WithString("modified_to", mcp.Description("RFC3339 time or YYYY-MM-DD")),
		mcp.WithBoolean("exclude_drafts"),
		mcp.WithNumber("limit", mcp.Description("Page size")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note's metadata, body, checksum and links."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path inside the vault (e.g. projects/launch.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The path must start with projects/, areas/, resources/ or archives/. "+
			"Read the contract first via the get_note_contract tool or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path for the new note (must end with .md)")),
		mcp.WithString("content", mcp.Description("Markdown body without a header block")),
		mcp.WithString("title", mcp.Description("Title (derived from the first heading when empty)")),
		mcp.WithArray("tags", stringList),
		mcp.WithString("status"),
		mcp.WithString("priority"),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Update a note's body and/or metadata. Content is appended unless replace_content is true. "+
			"Replacing keeps links that disappear in a Preserved Links section unless preserve_links is false."),
		mcp.WithString("path", mcp.Required()),
		mcp.WithString("content", mcp.Description("Text to append, or the new body with replace_content")),
		mcp.WithBoolean("replace_content"),
		mcp.WithBoolean("preserve_links", mcp.Description("Default true")),
		mcp.WithObject("metadata", mcp.Description(
			`Fields to change, e.g. {"tags": ["a"], "status": "active"}. title and created cannot be changed.`)),
		mcp.WithString("array_mode", mcp.Enum("replace", "append"), mcp.Description("How tags merge (default replace)")),
		mcp.WithBoolean("allow_remove", mcp.Description("Let null metadata values remove a field")),
		mcp.WithString("if_match", mcp.Description("Fail unless the note's checksum still equals this")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move or rename a note and rewrite every link that pointed at it."),
		mcp.WithString("from", mcp.Required()),
		mcp.WithString("to", mcp.Required()),
	), s.moveNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Links to it become broken links."),
		mcp.WithString("path", mcp.Required()),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the vault's note format contract. "+
			"Call this before creating or updating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note, with a short excerpt around each link."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_forward_links",
		mcp.WithDescription("List a note's outgoing links and whether each resolves."),
		mcp.WithString("path", mcp.Required()),
	), s.getForwardLinks)

	s.mcp.AddTool(mcp.NewTool("get_neighborhood",
		mcp.WithDescription("Notes within a few links of the given note, following links in both directions."),
		mcp.WithString("path", mcp.Required()),
		mcp.WithNumber("depth", mcp.Description("Maximum hops")),
		mcp.WithNumber("limit", mcp.Description("Maximum notes returned")),
	), s.getNeighborhood)

	s.mcp.AddTool(mcp.NewTool("get_broken_links",
		mcp.WithDescription("List links whose target matches no note."),
	), s.getBrokenLinks)

	s.mcp.AddTool(mcp.NewTool("get_orphans",
		mcp.WithDescription("List notes that nothing links to."),
	), s.getOrphans)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Document, draft, category and link counts."),
	), s.getStats)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Rebuild the link graph and search index from storage."),
	), s.reindex)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("Document layout and vault conventions for notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports a service failure to the model, prefixed with its kind
// so it can tell a bad argument from a conflict.
func errorResult(err error) (*mcp.CallToolResult, error) {
	if k := apperr.KindOf(err); k != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", k, err)), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

// decodeArg re-encodes an object argument into v.
func decodeArg(args map[string]any, key string, v any) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return true, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	}
	return t, nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := search.Filter{
		Text:          req.GetString("query", ""),
		Tags:          req.GetStringSlice("tags", nil),
		TagOperator:   search.Operator(strings.ToLower(req.GetString("tag_operator", ""))),
		Category:      models.Category(strings.ToLower(req.GetString("category", ""))),
		ExcludeDrafts: req.GetBool("exclude_drafts", false),
		Limit:         req.GetInt("limit", 0),
		Offset:        req.GetInt("offset", 0),
	}
	if f.Limit == 0 {
		f.Limit = 20
	}
	var err error
	if v := req.GetString("modified_from", ""); v != "" {
		if f.ModifiedFrom, err = parseTime(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if v := req.GetString("modified_to", ""); v != "" {
		if f.ModifiedTo, err = parseTime(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if strings.TrimSpace(f.Text) == "" && len(f.Tags) == 0 && f.Category == "" && f.ModifiedFrom.IsZero() && f.ModifiedTo.IsZero() {
		return mcp.NewToolResultError("query or at least one filter is required"), nil
	}
	if err := f.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.Search(ctx, f)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Read(ctx, path)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(note)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta := models.Metadata{
		Title:    req.GetString("title", ""),
		Tags:     req.GetStringSlice("tags", nil),
		Status:   req.GetString("status", ""),
		Priority: req.GetString("priority", ""),
	}
	note, err := s.svc.Create(ctx, path, meta, req.GetString("content", ""))
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (checksum %s)", note.Path, note.Checksum)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()

	u := noteservice.UpdateRequest{
		ReplaceContent: req.GetBool("replace_content", false),
		IfMatch:        req.GetString("if_match", ""),
	}
	if c, ok := args["content"].(string); ok {
		u.Content = &c
	}
	if p, ok := args["preserve_links"].(bool); ok {
		u.PreserveLinks = &p
	}
	var fields map[string]any
	ok, err := decodeArg(args, "metadata", &fields)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if ok {
		u.Metadata = &noteservice.MetadataPatch{
			Fields:      fields,
			ArrayMode:   noteservice.ArrayMode(req.GetString("array_mode", "")),
			AllowRemove: req.GetBool("allow_remove", false),
		}
	}
	if u.Content == nil && u.Metadata == nil {
		return mcp.NewToolResultError("content or metadata is required"), nil
	}

	res, err := s.svc.Update(ctx, path, u)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"path":              res.Note.Path,
		"checksum":          res.Note.Checksum,
		"links_preserved":   res.LinksPreserved,
		"preserved_targets": res.PreservedTargets,
	})
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Move(ctx, from, to)
	if err != nil {
		return errorResult(err)
	}
	res.Note = nil
	return jsonResult(res)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Delete(ctx, path)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return errorResult(err)
	}
	if len(rep.Sources) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(rep)
}

func (s *Server) getForwardLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.ForwardLinks(ctx, path)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(links)
}

func (s *Server) getNeighborhood(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, err := s.svc.Neighborhood(ctx, path, req.GetInt("depth", 0), req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(ns)
}

func (s *Server) getBrokenLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	links := s.svc.BrokenLinks(ctx)
	if len(links) == 0 {
		return mcp.NewToolResultText("no broken links"), nil
	}
	return jsonResult(links)
}

func (s *Server) getOrphans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := s.svc.Orphans(ctx)
	if len(paths) == 0 {
		return mcp.NewToolResultText("no orphans"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Stats(ctx))
}

func (s *Server) reindex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Reindex(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(rep)
}
