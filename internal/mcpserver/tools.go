package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/labelgraph"
)

// Arguments structs

type IndexArgs struct {
	Path  string `json:"path,omitempty" jsonschema:"Directory to index. Defaults to the server's root directory"`
	Force bool   `json:"force,omitempty" jsonschema:"Drop the existing index and rebuild it from scratch"`
}

type LabelArgs struct {
	Label string `json:"label" jsonschema:"The qualified label name, e.g. main.L1"`
}

type UsagesArgs struct {
	Label string `json:"label" jsonschema:"The qualified label name, e.g. main.L1"`
	Bare  string `json:"bare,omitempty" jsonschema:"Unscoped name to fall back to when the qualified name has no usages"`
}

type ListArgs struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"Only list labels starting with this prefix"`
}

type NoArgs struct{}

type ScriptArgs struct {
	Name   string `json:"name,omitempty" jsonschema:"Name of a built-in query script, e.g. redefs"`
	Source string `json:"source,omitempty" jsonschema:"Risor source to evaluate when no name is given"`
}

// site is a label location as reported to clients. Line is 1-based.
type site struct {
	File  string `json:"file"`
	Line  int    `json:"line"`
	Label string `json:"label"`
	Main  bool   `json:"main"`
}

func sites(locs []labelgraph.Location) []site {
	out := make([]site, 0, len(locs))
	for _, l := range locs {
		out = append(out, site{File: l.File, Line: l.Line + 1, Label: l.Label, Main: l.IsMain})
	}
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index",
		Description: "Scans a source tree and updates the label index",
	}, s.handleIndex)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "label_definitions",
		Description: "Returns the lines that define a label",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args LabelArgs) (*mcp.CallToolResult, any, error) {
		if args.Label == "" {
			return errorResult("label is required"), nil, nil
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		locs, err := s.engine.Query().Definitions(args.Label)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(sites(locs)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "label_usages",
		Description: "Returns the lines that use a label",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UsagesArgs) (*mcp.CallToolResult, any, error) {
		if args.Label == "" {
			return errorResult("label is required"), nil, nil
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		locs, fallback, err := s.engine.Query().Usages(args.Label, args.Bare)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(map[string]any{"usages": sites(locs), "fallback": fallback}), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "label_list",
		Description: "Lists the defined labels, optionally filtered by prefix",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListArgs) (*mcp.CallToolResult, any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		names, err := s.engine.Query().Labels(args.Prefix)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(names) == 0 {
			return textResult("No labels found."), nil, nil
		}
		return textResult(strings.Join(names, "\n")), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "label_redefinitions",
		Description: "Lists labels defined on more than one line",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		redefs, err := s.engine.Query().Redefinitions()
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		type redef struct {
			Name  string `json:"name"`
			Sites []site `json:"sites"`
		}
		out := make([]redef, 0, len(redefs))
		for _, r := range redefs {
			out = append(out, redef{Name: r.Name, Sites: sites(r.Locations)})
		}
		return jsonResult(out), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "label_undefined",
		Description: "Lists labels that are used but never defined",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		names, err := s.engine.Query().Undefined()
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(names) == 0 {
			return textResult("No undefined labels."), nil, nil
		}
		return textResult(strings.Join(names, "\n")), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "describe_label",
		Description: "Returns the tooltip text for a label: where it is defined and used",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args LabelArgs) (*mcp.CallToolResult, any, error) {
		if args.Label == "" {
			return errorResult("label is required"), nil, nil
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		d, err := s.engine.Describer(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Load index failed: %v", err)), nil, nil
		}
		defs, err := d.DescribeDefinitions(ctx, args.Label)
		if err != nil {
			return errorResult(fmt.Sprintf("Describe failed: %v", err)), nil, nil
		}
		uses, err := d.DescribeUsages(ctx, args.Label, bareName(args.Label, s.engine.Dialect()))
		if err != nil {
			return errorResult(fmt.Sprintf("Describe failed: %v", err)), nil, nil
		}
		return textResult(strings.TrimSpace(defs + "\n" + uses)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "run_script",
		Description: "Runs a built-in or ad-hoc Risor query script against the index",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ScriptArgs) (*mcp.CallToolResult, any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var (
			res any
			err error
		)
		switch {
		case args.Name != "":
			res, err = s.engine.RunNamedScript(ctx, args.Name)
		case args.Source != "":
			res, err = s.engine.RunScript(ctx, args.Source)
		default:
			return errorResult("name or source is required"), nil, nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("Script failed: %v", err)), nil, nil
		}
		if str, ok := res.(string); ok {
			return textResult(str), nil, nil
		}
		return jsonResult(res), nil, nil
	})
}

func (s *Server) handleIndex(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
	root := args.Path
	if root == "" {
		root = s.root
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid path: %v", err)), nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	if args.Force {
		if err := s.engine.Reset(); err != nil {
			return errorResult(fmt.Sprintf("Reset failed: %v", err)), nil, nil
		}
	}
	if err := s.engine.IndexDirectory(ctx, root); err != nil {
		return errorResult(fmt.Sprintf("Index failed: %v", err)), nil, nil
	}
	affected, err := s.engine.Affected()
	if err != nil {
		s.logger.Printf("warning: affected files: %v", err)
	}
	files, err := s.engine.Query().Files()
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}
	return jsonResult(map[string]any{
		"root":             root,
		"files":            len(files),
		"affected":         affected,
		"duration_seconds": time.Since(start).Seconds(),
	}), nil, nil
}

// bareName strips the scope from a qualified label. MASM joins scope and
// name with a dot; the other dialects keep the local label's leading dot.
func bareName(qualified string, d labelgraph.Dialect) string {
	i := strings.LastIndexByte(qualified, '.')
	if i <= 0 || i == len(qualified)-1 {
		return qualified
	}
	if d == labelgraph.MASM {
		return qualified[i+1:]
	}
	return qualified[i:]
}
