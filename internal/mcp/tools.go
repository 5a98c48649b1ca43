package mcp

import "github.com/mark3labs/mcp-go/mcp"

var analyzePaperTool = mcp.NewTool("analyze_paper",
	mcp.WithDescription("Analyze a networking research paper and make the analysis the conversation's current one. Pass either a local PDF path or the paper text."),
	mcp.WithString("conversation_id",
		mcp.Required(),
		mcp.Description("Conversation to bind the analysis to; created if new"),
	),
	mcp.WithString("pdf_path",
		mcp.Description("Path to a PDF file on this machine"),
	),
	mcp.WithString("text",
		mcp.Description("Plain text of the paper, used when pdf_path is not given"),
	),
)

var generateCodeTool = mcp.NewTool("generate_code",
	mcp.WithDescription("Generate a first implementation of an analyzed paper."),
	mcp.WithString("conversation_id", mcp.Required()),
	mcp.WithString("code_type",
		mcp.Required(),
		mcp.Description("Target implementation"),
		mcp.Enum("python", "ns3", "p4"),
	),
	mcp.WithString("paper_id",
		mcp.Description("Analysis to implement (default: the current one)"),
	),
)

var evaluateCodeTool = mcp.NewTool("evaluate_code",
	mcp.WithDescription("Score an implementation for correctness, performance and improvement potential."),
	mcp.WithString("conversation_id", mcp.Required()),
	mcp.WithString("code_id",
		mcp.Description("Code artifact to evaluate (default: the current one)"),
	),
	mcp.WithString("paper_id",
		mcp.Description("Analysis to evaluate against (default: the one the code was generated from)"),
	),
)

var refineCodeTool = mcp.NewTool("refine_code",
	mcp.WithDescription("Run one refinement iteration on the current implementation and re-evaluate it. The result says whether further iterations are worthwhile."),
	mcp.WithString("conversation_id", mcp.Required()),
	mcp.WithString("code_id",
		mcp.Description("Must be the current code artifact (default: the current one)"),
	),
	mcp.WithString("feedback",
		mcp.Description("Optional guidance for this iteration"),
	),
)

var getSessionTool = mcp.NewTool("get_session",
	mcp.WithDescription("Get a conversation's current pointers, refinement state and chat turns."),
	mcp.WithString("conversation_id", mcp.Required()),
)

var getReportTool = mcp.NewTool("get_report",
	mcp.WithDescription("Get a markdown report: an evaluation report by evaluation_id, or the refinement process of a code lineage by code_id."),
	mcp.WithString("evaluation_id"),
	mcp.WithString("code_id"),
)

var searchKnowledgeTool = mcp.NewTool("search_knowledge",
	mcp.WithDescription("Search the knowledge base of analyzed papers and reference material semantically."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
	mcp.WithString("source_type",
		mcp.Description("Filter results by source"),
		mcp.Enum("paper_analysis", "reference"),
	),
)
