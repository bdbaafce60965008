package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const guidelines = `# labelgraph

Run the index tool once before querying. Label names are qualified with
their scope: MASM procedure labels look like proc.label, NASM and GAS
local labels like parent.local.

- label_definitions and label_usages take a qualified name.
- label_usages falls back to the bare name when the qualified name has
  no usages and reports that it did.
- run_script runs the built-in scripts listed under labelgraph://scripts/.
`

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "labelgraph://usage-guidelines",
		Name:        "Usage Guidelines",
		Description: "How to use the labelgraph MCP tools",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: "labelgraph://usage-guidelines", MIMEType: "text/markdown", Text: guidelines},
			},
		}, nil
	})

	schemaMap := buildSchemaMap()
	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "labelgraph://schemas/{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		schemaJSON, ok := schemaMap[strings.TrimPrefix(uri, "labelgraph://schemas/")]
		if !ok {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "application/schema+json", Text: schemaJSON}},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "labelgraph://scripts/{name}",
		Name:        "Query Script",
		Description: "Source of a built-in Risor query script",
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		src, err := s.engine.ScriptSource(strings.TrimPrefix(uri, "labelgraph://scripts/"))
		if err != nil {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: src}},
		}, nil
	})
}

// buildSchemaMap maps each tool name to the JSON schema of its arguments.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[IndexArgs](m, "index")
	addSchema[LabelArgs](m, "label_definitions")
	addSchema[UsagesArgs](m, "label_usages")
	addSchema[ListArgs](m, "label_list")
	addSchema[NoArgs](m, "label_redefinitions")
	addSchema[NoArgs](m, "label_undefined")
	addSchema[LabelArgs](m, "describe_label")
	addSchema[ScriptArgs](m, "run_script")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("schema for %s: %v", name, err))
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("schema for %s: %v", name, err))
	}
	m[name] = string(schemaJSON)
}
