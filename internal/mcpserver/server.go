// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Munin tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/drops"
	"github.com/starford/munin/internal/store"
)

// Server wraps the MCP server with Munin tools.
type Server struct {
	mcp      *server.MCPServer
	archive  store.Archive
	provider drops.Provider
}

// New creates a new MCP server with all Munin tools registered.
func New(archive store.Archive, provider drops.Provider) *Server {
	s := &Server{archive: archive, provider: provider}

	s.mcp = server.NewMCPServer(
		"Munin",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List recently ingested notes, newest first, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Optional tag to filter by")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read one ingested note by its content fingerprint."),
		mcp.WithString("fingerprint", mcp.Required(), mcp.Description("SHA-256 fingerprint of the note content")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("capture_note",
		mcp.WithDescription("Drop a plain-text file into the watched folder for ingestion. "+
			"The pipeline extracts title, summary and tags automatically; call get_note_fields "+
			"or read the munin://note-fields resource to learn what the archive stores."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name for the drop (must carry an accepted extension, e.g. notes.txt)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Plain-text content to ingest")),
	), s.captureNote)

	s.mcp.AddTool(mcp.NewTool("get_note_fields",
		mcp.WithDescription("Returns the archived note field contract. "+
			"Call this before reading notes to understand the stored shape."),
	), s.getNoteFields)

	// Resource: archived note field contract.
	s.mcp.AddResource(
		mcp.NewResource("munin://note-fields", "Note Fields Contract",
			mcp.WithResourceDescription("Shape of archived notes and how drops become them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFieldsResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")
	limit := req.GetInt("limit", 20)

	notes, _, err := s.archive.ListRecent(ctx, limit, 0, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fp, err := req.RequireString("fingerprint")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.archive.GetByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", fp)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) captureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := filepath.Base(filename)
	if !s.provider.Accepts(name) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file name: %s", name)), nil
	}
	if content == "" {
		return mcp.NewToolResultError("content must not be empty"), nil
	}

	if err := s.provider.Write(name, []byte(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("queued for ingestion: %s", name)), nil
}

func (s *Server) getNoteFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFieldsContract), nil
}

func (s *Server) readNoteFieldsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "munin://note-fields",
			MIMEType: "text/markdown",
			Text:     NoteFieldsContract,
		},
	}, nil
}
