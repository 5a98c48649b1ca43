package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/paper2code/internal/report"
	"github.com/ziadkadry99/paper2code/internal/session"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

func (s *Server) handleAnalyzePaper(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}

	text, title := request.GetString("text", ""), ""
	if path := request.GetString("pdf_path", ""); path != "" {
		if s.extractor == nil {
			return mcp.NewToolResultError("PDF extraction is not available; pass the paper text instead"), nil
		}
		text, err = s.readPDF(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("could not read %s: %v", path, err)), nil
		}
		title = filepath.Base(path)
	}
	if text == "" {
		return mcp.NewToolResultError("one of pdf_path or text is required"), nil
	}

	an, err := s.manager.AnalyzePaper(ctx, conversationID, text, title)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(an)
}

func (s *Server) readPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return s.extractor.ExtractText(f, info.Size())
}

func (s *Server) handleGenerateCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}
	codeType, err := request.RequireString("code_type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code_type"), nil
	}

	code, err := s.manager.GenerateCode(ctx, conversationID, request.GetString("paper_id", ""), codeType)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(code)
}

func (s *Server) handleEvaluateCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}

	e, err := s.manager.Evaluate(ctx, conversationID, request.GetString("paper_id", ""), request.GetString("code_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(e)
}

func (s *Server) handleRefineCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}

	res, err := s.manager.Refine(ctx, conversationID, "", request.GetString("code_id", ""), request.GetString("feedback", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}

	sess, err := s.manager.Session(ctx, conversationID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sess)
}

func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := s.manager.Artifacts()

	if id := request.GetString("evaluation_id", ""); id != "" {
		e, err := store.GetEvaluation(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load evaluation: %v", err)), nil
		}
		if e == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no evaluation %q", id)), nil
		}
		code, err := store.GetCode(ctx, e.CodeID)
		if err != nil || code == nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load code %s: %v", e.CodeID, err)), nil
		}
		return mcp.NewToolResultText(report.Evaluation(code, e)), nil
	}

	if id := request.GetString("code_id", ""); id != "" {
		lineage, err := store.Lineage(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load lineage: %v", err)), nil
		}
		if len(lineage) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no code artifact %q", id)), nil
		}
		history, err := store.History(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load history: %v", err)), nil
		}
		return mcp.NewToolResultText(report.Refinement(lineage, history)), nil
	}

	return mcp.NewToolResultError("one of evaluation_id or code_id is required"), nil
}

// handleSearchKnowledge performs semantic search over the knowledge base.
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no knowledge base is configured"), nil
	}

	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	var filter *vectordb.SearchFilter
	if src := request.GetString("source_type", ""); src != "" {
		st := vectordb.SourceType(src)
		filter = &vectordb.SearchFilter{SourceType: &st}
	}

	results, err := s.store.Search(ctx, query, limit, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. Analyze a paper or run `paper2code kb ingest` to populate the knowledge base."), nil
	}

	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

// toolError reports a pipeline failure with the same message an HTTP
// client would see.
func toolError(err error) *mcp.CallToolResult {
	_, msg := session.PublicError(err)
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
