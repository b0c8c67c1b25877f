// Package tools provides MCP tool implementations for procmap.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/cluster"
	"github.com/procmap-io/procmap/pkg/diagram"
	"github.com/procmap-io/procmap/pkg/intent"
	"github.com/procmap-io/procmap/pkg/services"
)

// ClusterToolDeps contains dependencies for the cluster management tools.
type ClusterToolDeps struct {
	Service    *services.ClusterService
	Classifier *intent.Classifier
	Logger     *zap.Logger
}

// RegisterClusterTools registers all cluster management MCP tools.
func RegisterClusterTools(s *server.MCPServer, deps *ClusterToolDeps) {
	registerSummaryTool(s, deps)
	registerDetailTool(s, deps)
	registerDiagramTool(s, deps)
	registerRenameClusterTool(s, deps)
	registerRenameGroupTool(s, deps)
	registerMoveGroupTool(s, deps)
	registerMoveProcedureTool(s, deps)
	registerAddClusterTool(s, deps)
	registerDeleteClusterTool(s, deps)
	registerDeleteProcedureTool(s, deps)
	registerDeleteTableTool(s, deps)
	registerRestoreProcedureTool(s, deps)
	registerRestoreTableTool(s, deps)
	registerTrashTools(s, deps)
	registerRebuildTool(s, deps)
	registerCommandTool(s, deps)
}

// execute runs one operation and converts the outcome into a tool result.
// Rejected operations become structured errors; engine failures surface as
// Go errors so the MCP layer reports them as protocol errors.
func execute(deps *ClusterToolDeps, op string, args map[string]any) (*mcp.CallToolResult, error) {
	res, err := deps.Service.Execute(op, args)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", op, err)
	}
	if !res.OK {
		return NewErrorResult("operation_rejected", res.Message), nil
	}
	jsonBytes, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", op, err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func registerSummaryTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"cluster_summary",
		mcp.WithDescription(
			"Get an overview of all procedure clusters: per-cluster group, procedure and table counts, "+
				"plus the global, orphaned and missing table lists.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return execute(deps, services.OpGetClusterSummary, nil)
	})
}

func registerDetailTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"cluster_detail",
		mcp.WithDescription(
			"Get one cluster with its full group membership, procedures and table union. "+
				"The cluster may be addressed by id (e.g. 'C3') or display name.",
		),
		mcp.WithString("cluster_id", mcp.Required(), mcp.Description("Cluster id or display name")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("cluster_id")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpGetClusterDetail, map[string]any{"cluster_id": cid})
	})
}

func registerDiagramTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"cluster_diagram",
		mcp.WithDescription(
			"Render cluster state as Graphviz DOT text. Without a cluster_id the overview graph is "+
				"returned; with one, that cluster's group/table graph.",
		),
		mcp.WithString("cluster_id", mcp.Description("Optional - cluster id or display name for a detail graph")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid := trimString(getOptionalString(req, "cluster_id"))
		var dot string
		err := deps.Service.View(func(st *cluster.State) error {
			if cid == "" {
				dot = diagram.SummaryDOT(st)
				return nil
			}
			var renderErr error
			dot, renderErr = diagram.ClusterDOT(st, cid)
			return renderErr
		})
		if err != nil {
			return NewErrorResult("diagram_failed", err.Error()), nil
		}
		return mcp.NewToolResultText(dot), nil
	})
}

func registerRenameClusterTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"rename_cluster",
		mcp.WithDescription("Set a cluster's display name. The cluster id is unchanged."),
		mcp.WithString("cluster_id", mcp.Required(), mcp.Description("Cluster id or current display name")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New display name")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("cluster_id")
		if err != nil {
			return nil, err
		}
		name, err := req.RequireString("new_name")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpRenameCluster, map[string]any{"cluster_id": cid, "new_name": name})
	})
}

func registerRenameGroupTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"rename_group",
		mcp.WithDescription("Set a procedure group's display name. The group id is unchanged."),
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group id or current display name")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New display name")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		gid, err := req.RequireString("group_id")
		if err != nil {
			return nil, err
		}
		name, err := req.RequireString("new_name")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpRenameGroup, map[string]any{"group_id": gid, "new_name": name})
	})
}

func registerMoveGroupTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"move_group",
		mcp.WithDescription(
			"Move a procedure group into another cluster. The source cluster stays, even if emptied.",
		),
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group id or display name")),
		mcp.WithString("target_cluster_id", mcp.Required(), mcp.Description("Destination cluster id or display name")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		gid, err := req.RequireString("group_id")
		if err != nil {
			return nil, err
		}
		cid, err := req.RequireString("target_cluster_id")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpMoveGroup, map[string]any{"group_id": gid, "target_cluster_id": cid})
	})
}

func registerMoveProcedureTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"move_procedure",
		mcp.WithDescription(
			"Move one procedure into another cluster. A procedure alone in its group moves with the "+
				"group; otherwise it is split into a new singleton group, leaving the rest of its old "+
				"group untouched.",
		),
		mcp.WithString("procedure_name", mcp.Required(), mcp.Description("Procedure name (e.g. 'dbo.usp_GetOrders')")),
		mcp.WithString("target_cluster_id", mcp.Required(), mcp.Description("Destination cluster id or display name")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		proc, err := req.RequireString("procedure_name")
		if err != nil {
			return nil, err
		}
		cid, err := req.RequireString("target_cluster_id")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpMoveProcedure, map[string]any{"procedure_name": proc, "target_cluster_id": cid})
	})
}

func registerAddClusterTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"add_cluster",
		mcp.WithDescription("Create a new empty cluster to move groups or procedures into."),
		mcp.WithString("name", mcp.Description("Optional display name for the new cluster")),
		mcp.WithString("cluster_id", mcp.Description("Optional explicit id; a fresh one is minted when omitted")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{
			"cluster_id": getOptionalString(req, "cluster_id"),
			"name":       getOptionalString(req, "name"),
		}
		return execute(deps, services.OpAddCluster, args)
	})
}

func registerDeleteClusterTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"delete_cluster",
		mcp.WithDescription(
			"Delete a cluster. Every procedure in every member group goes to trash individually, "+
				"each with its table set captured, and can be restored later.",
		),
		mcp.WithString("cluster_id", mcp.Required(), mcp.Description("Cluster id or display name")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("cluster_id")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpDeleteCluster, map[string]any{"cluster_id": cid})
	})
}

func registerDeleteProcedureTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"delete_procedure",
		mcp.WithDescription(
			"Move a procedure to trash. Its table-access set is captured so it can be restored intact.",
		),
		mcp.WithString("procedure_name", mcp.Required(), mcp.Description("Procedure name")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		proc, err := req.RequireString("procedure_name")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpDeleteProcedure, map[string]any{"procedure_name": proc})
	})
}

func registerDeleteTableTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"delete_table",
		mcp.WithDescription(
			"Remove a table from the known catalog set. Procedures referencing it keep their access "+
				"sets; the table shows up as missing until restored. Tables already missing cannot be deleted.",
		),
		mcp.WithString("table_name", mcp.Required(), mcp.Description("Table name (e.g. 'dbo.Orders')")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table_name")
		if err != nil {
			return nil, err
		}
		return execute(deps, services.OpDeleteTable, map[string]any{"table_name": table})
	})
}

func registerRestoreProcedureTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"restore_procedure",
		mcp.WithDescription(
			"Restore a trashed procedure. Its table set is read from the trash entry. It joins an "+
				"existing group with the identical table set in the target cluster, or gets a new "+
				"singleton group. Without a target cluster the original cluster is used.",
		),
		mcp.WithString("procedure_name", mcp.Required(), mcp.Description("Procedure name as it appears in trash")),
		mcp.WithString("target_cluster_id", mcp.Description("Optional - destination cluster id or display name")),
		mcp.WithBoolean("force_new_group", mcp.Description("Optional - always create a new singleton group")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		proc, err := req.RequireString("procedure_name")
		if err != nil {
			return nil, err
		}
		args := map[string]any{
			"procedure_name":    proc,
			"target_cluster_id": getOptionalString(req, "target_cluster_id"),
			"force_new_group":   getOptionalBool(req, "force_new_group"),
		}
		return execute(deps, services.OpRestoreProcedure, args)
	})
}

func registerRestoreTableTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"restore_table",
		mcp.WithDescription("Restore a trashed table by its index among the table entries in trash."),
		mcp.WithNumber("trash_index", mcp.Required(), mcp.Description("Zero-based index into the table trash entries")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idx, ok := getOptionalFloat(req, "trash_index")
		if !ok {
			return NewErrorResult("invalid_parameters", "parameter 'trash_index' is required"), nil
		}
		return execute(deps, services.OpRestoreTable, map[string]any{"trash_index": idx})
	})
}

func registerTrashTools(s *server.MCPServer, deps *ClusterToolDeps) {
	listTool := mcp.NewTool(
		"list_trash",
		mcp.WithDescription("List all trashed procedures and tables with their captured metadata."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	s.AddTool(listTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return execute(deps, services.OpListTrash, nil)
	})

	emptyTool := mcp.NewTool(
		"empty_trash",
		mcp.WithDescription("Permanently discard every trash entry. This cannot be undone."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	s.AddTool(emptyTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return execute(deps, services.OpEmptyTrash, nil)
	})
}

func registerRebuildTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"rebuild_clusters",
		mcp.WithDescription(
			"Rebuild all clusters from the recorded catalog file using the stored parameters. "+
				"Destructive: manual renames, moves and trash are discarded.",
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Service.Rebuild(nil); err != nil {
			return NewErrorResult("rebuild_failed", err.Error()), nil
		}
		return execute(deps, services.OpGetClusterSummary, nil)
	})
}

func registerCommandTool(s *server.MCPServer, deps *ClusterToolDeps) {
	tool := mcp.NewTool(
		"cluster_command",
		mcp.WithDescription(
			"Run a free-text cluster management command (e.g. \"rename cluster C3 to Billing\"). "+
				"The text is classified into a structured operation before execution.",
		),
		mcp.WithString("text", mcp.Required(), mcp.Description("The command in plain language")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return nil, err
		}
		var classified *intent.Result
		if deps.Classifier != nil {
			classified = deps.Classifier.Classify(ctx, text)
		} else {
			classified = intent.ClassifyHeuristic(text)
		}
		if classified.Operation == intent.OpUnknown {
			return NewErrorResultWithDetails("unrecognized_command",
				"could not map the text to a cluster operation", classified), nil
		}
		deps.Logger.Info("command classified",
			zap.String("operation", classified.Operation),
			zap.Float64("confidence", classified.Confidence),
			zap.String("source", classified.Source))
		return execute(deps, classified.Operation, classified.Arguments)
	})
}
