package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/edoigtrd/mcp-image-generators/internal/constants"
	"github.com/edoigtrd/mcp-image-generators/internal/imagen"
	"github.com/edoigtrd/mcp-image-generators/internal/metrics"
)

// registerTools builds the tool surface: one image-list tool plus per-generator
// generate/edit/schema/readme tools matching the generator's capabilities.
func registerTools(srv *server.MCPServer, generators map[string]imagen.Generator, tm *metrics.ToolMetrics) {
	addTool(srv, tm,
		mcp.NewTool(constants.ToolPrefix+"list",
			mcp.WithDescription("List the available image generators and their capabilities."),
		),
		listHandler(generators))

	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		registerGeneratorTools(srv, tm, name, generators[name])
	}
}

func registerGeneratorTools(srv *server.MCPServer, tm *metrics.ToolMetrics, name string, gen imagen.Generator) {
	addTool(srv, tm,
		mcp.NewTool(toolName(name, "readme"),
			mcp.WithDescription(fmt.Sprintf("Usage and prompting guide for the %s generator.", name)),
		),
		readmeHandler(gen))

	if g, ok := gen.(imagen.ImageGenerator); ok {
		addTool(srv, tm,
			mcp.NewTool(toolName(name, "generate_schema"),
				mcp.WithDescription(fmt.Sprintf("Schema of the options accepted by %s.", toolName(name, "generate"))),
			),
			schemaHandler(g.GenerateSchema))

		addTool(srv, tm,
			mcp.NewTool(toolName(name, "generate"),
				mcp.WithDescription(fmt.Sprintf("Generate an image with the %s generator. Returns the public URL of the result.", name)),
				mcp.WithObject("options",
					mcp.Required(),
					mcp.Description(fmt.Sprintf("Generation options, described by %s.", toolName(name, "generate_schema"))),
				),
			),
			callHandler(g.Generate))
	}

	if g, ok := gen.(imagen.ImageEditor); ok {
		addTool(srv, tm,
			mcp.NewTool(toolName(name, "edit_schema"),
				mcp.WithDescription(fmt.Sprintf("Schema of the options accepted by %s.", toolName(name, "edit"))),
			),
			schemaHandler(g.EditSchema))

		addTool(srv, tm,
			mcp.NewTool(toolName(name, "edit"),
				mcp.WithDescription(fmt.Sprintf("Edit images with the %s generator. Returns the public URL of the result.", name)),
				mcp.WithObject("options",
					mcp.Required(),
					mcp.Description(fmt.Sprintf("Edition options, described by %s.", toolName(name, "edit_schema"))),
				),
			),
			callHandler(g.Edit))
	}
}

func addTool(srv *server.MCPServer, tm *metrics.ToolMetrics, tool mcp.Tool, handler server.ToolHandlerFunc) {
	srv.AddTool(tool, instrument(tm, tool.Name, handler))
}

// instrument wraps a tool handler with invocation metrics.
func instrument(tm *metrics.ToolMetrics, tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)

		outcome := metrics.OutcomeSuccess
		if err != nil || (result != nil && result.IsError) {
			outcome = metrics.OutcomeError
		}
		tm.Observe(tool, outcome, time.Since(start))

		return result, err
	}
}

type generatorInfo struct {
	Class        string              `json:"class"`
	Capabilities imagen.Capabilities `json:"capabilities"`
}

func listHandler(generators map[string]imagen.Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := make(map[string]generatorInfo, len(generators))
		for name, gen := range generators {
			out[name] = generatorInfo{
				Class:        className(gen),
				Capabilities: imagen.CapabilitiesOf(gen),
			}
		}
		return jsonResult(out)
	}
}

func schemaHandler(schema func() imagen.Schema) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(schema())
	}
}

func readmeHandler(gen imagen.Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		readme := strings.TrimSpace(gen.Readme())
		if readme == "" {
			readme = "No README available."
		}
		return mcp.NewToolResultText(readme), nil
	}
}

func callHandler(call func(ctx context.Context, options map[string]any) (string, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		options, err := optionsArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		url, err := call(ctx, options)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(url), nil
	}
}

func optionsArg(request mcp.CallToolRequest) (map[string]any, error) {
	raw, ok := request.GetArguments()["options"]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	options, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options must be an object, got %T", raw)
	}
	return options, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %v", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolName(generator, op string) string {
	return constants.ToolPrefix + generator + "-" + op
}

// className reports the generator's implementation type, e.g. "flux.Client".
func className(gen imagen.Generator) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", gen), "*")
}
