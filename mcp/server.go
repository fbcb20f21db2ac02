// Package mcp provides the MCP (Model Context Protocol) server exposing the
// results of the last import.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/metrigraph/internal/metrics"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/storage"
)

const protocolVersion = "2024-11-05"

// Server represents the MCP server.
type Server struct {
	storage  StorageBackend
	registry *metrics.Registry
	impl     *mcp.Implementation
}

// StorageBackend is the read side of a result store.
type StorageBackend interface {
	Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
	Resource(ctx context.Context, view resource.View, key string) (*resource.Resource, error)
	Measures(ctx context.Context, resourceKey string) ([]resource.Measure, error)
	Findings(ctx context.Context, resourceKey string) ([]resource.Finding, error)
	Stats(ctx context.Context) (storage.Stats, error)
	LastRun(ctx context.Context) (*storage.RunInfo, error)
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server. registry names the metrics found in
// the store.
func NewServer(store StorageBackend, registry *metrics.Registry) *Server {
	return &Server{
		storage:  store,
		registry: registry,
		impl: &mcp.Implementation{
			Name:    "metrigraph",
			Version: "0.1.0",
		},
	}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "metrigraph_query",
			Description: "Search imported resources (components, packages, classes, methods, directories, files) by name.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "metrigraph_measures",
			Description: "List the metric values recorded for a resource.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"resource": {Type: "string", Description: "Resource key, as returned by metrigraph_query"},
				},
				Required: []string{"resource"},
			},
		},
		{
			Name:        "metrigraph_findings",
			Description: "List the metric threshold violations reported for a resource.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"resource": {Type: "string", Description: "Resource key, as returned by metrigraph_query"},
				},
				Required: []string{"resource"},
			},
		},
		{
			Name:        "metrigraph_metrics",
			Description: "Describe the known metrics, optionally restricted to one domain (Size, Complexity, Coupling, ...).",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"domain": {Type: "string", Description: "Metric domain filter"},
				},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "metrigraph://overview",
			Name:        "Import Overview",
			Description: "Resource, measure and finding counts and the last run",
			MimeType:    "text/plain",
		},
		{
			URI:         "metrigraph://catalog",
			Name:        "Metric Catalog",
			Description: "Every metric the importer publishes",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "metrigraph_query":
		query, _ := args["query"].(string)
		limit := intArg(args["limit"])
		if limit <= 0 {
			limit = 20
		}
		return handleQuery(ctx, s.storage, query, limit)
	case "metrigraph_measures":
		key, _ := args["resource"].(string)
		return handleMeasures(ctx, s.storage, s.registry, key)
	case "metrigraph_findings":
		key, _ := args["resource"].(string)
		return handleFindings(ctx, s.storage, key)
	case "metrigraph_metrics":
		domain, _ := args["domain"].(string)
		return handleMetrics(s.registry, domain), nil
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// intArg accepts JSON numbers and Go ints.
func intArg(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "metrigraph://overview":
		return getOverview(ctx, s.storage)
	case "metrigraph://catalog":
		return getCatalog(s.registry), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	// MCP requires compact JSON, one message per line.
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		// Notifications carry no id and get no response.
		if _, ok := req["id"]; !ok {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return result(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return result(id, map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    s.impl.Name,
			"version": s.impl.Version,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{
				"listChanged": false,
			},
			"resources": map[string]any{
				"listChanged": false,
			},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}
	return result(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	text, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return result(id, map[string]any{
		"content": []map[string]any{
			{
				"type": "text",
				"text": text,
			},
		},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}
	return result(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return result(id, map[string]any{
		"contents": []map[string]any{
			{
				"uri":      uri,
				"mimeType": "text/plain",
				"text":     content,
			},
		},
	})
}

// Tool Handlers

func handleQuery(ctx context.Context, store StorageBackend, query string, limit int) (string, error) {
	if query == "" {
		return "No query provided", nil
	}

	results, err := store.Search(ctx, query, limit)
	if err != nil {
		return "", fmt.Errorf("searching: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No resources found for %q", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Resources matching %q\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (%s, %s view) `%s`", i+1, r.Name, r.Qualifier, r.View, r.Key)
		if r.Path != "" {
			fmt.Fprintf(&sb, " in `%s`", r.Path)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func handleMeasures(ctx context.Context, store StorageBackend, registry *metrics.Registry, key string) (string, error) {
	if key == "" {
		return "No resource provided", nil
	}

	measures, err := store.Measures(ctx, key)
	if err != nil {
		return "", fmt.Errorf("loading measures: %w", err)
	}
	if len(measures) == 0 {
		return fmt.Sprintf("No measures recorded for `%s`", key), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Measures of `%s`\n\n", key)
	sb.WriteString("| Metric | Name | Value |\n")
	sb.WriteString("|--------|------|-------|\n")
	for _, m := range measures {
		name := ""
		if registry != nil {
			if def, ok := registry.ByKey(m.MetricKey); ok {
				name = def.Name
			}
		}
		value := m.Data
		if value == "" {
			value = formatValue(m.Value)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", m.MetricKey, name, value)
	}
	return sb.String(), nil
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func handleFindings(ctx context.Context, store StorageBackend, key string) (string, error) {
	if key == "" {
		return "No resource provided", nil
	}

	findings, err := store.Findings(ctx, key)
	if err != nil {
		return "", fmt.Errorf("loading findings: %w", err)
	}
	if len(findings) == 0 {
		return fmt.Sprintf("No findings for `%s`", key), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Findings on `%s` (%d)\n\n", key, len(findings))
	for _, f := range findings {
		fmt.Fprintf(&sb, "- **%s**: %s\n", f.Rule, f.Message)
	}
	return sb.String(), nil
}

func handleMetrics(registry *metrics.Registry, domain string) string {
	if registry == nil {
		return "No metric catalog loaded"
	}

	var sb strings.Builder
	count := 0
	for _, m := range registry.All() {
		if domain != "" && !strings.EqualFold(m.Domain, domain) {
			continue
		}
		fmt.Fprintf(&sb, "- `%s` %s (%s, %s): %s\n", m.Key, m.Name, m.Domain, m.Type, m.Description)
		count++
	}
	if count == 0 {
		return fmt.Sprintf("No metrics in domain %q", domain)
	}
	return fmt.Sprintf("## Metrics (%d)\n\n", count) + sb.String()
}

// Resource Handlers

func getOverview(ctx context.Context, store StorageBackend) (string, error) {
	stats, err := store.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("counting results: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# metrigraph Import Overview\n\n")
	fmt.Fprintf(&sb, "**Resources:** %d\n", stats.Resources)
	fmt.Fprintf(&sb, "**Measures:** %d\n", stats.Measures)
	fmt.Fprintf(&sb, "**Findings:** %d\n", stats.Findings)

	sb.WriteString("\n## Resources per View\n\n")
	for _, view := range resource.AllViews {
		fmt.Fprintf(&sb, "- %s: %d\n", view, stats.ByView[view])
	}

	run, err := store.LastRun(ctx)
	if err != nil {
		return "", fmt.Errorf("loading last run: %w", err)
	}
	sb.WriteString("\n## Last Run\n\n")
	if run == nil {
		sb.WriteString("No import recorded yet.\n")
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, "- Run: %s\n", run.RunID)
	fmt.Fprintf(&sb, "- Project: %s\n", run.Project)
	fmt.Fprintf(&sb, "- Finished: %s (%s)\n", run.Finished.Format("2006-01-02 15:04:05"), run.Duration)
	if len(run.Failed) > 0 {
		fmt.Fprintf(&sb, "- Failed views: %s\n", strings.Join(run.Failed, ", "))
	}
	if len(run.Skipped) > 0 {
		fmt.Fprintf(&sb, "- Skipped views: %s\n", strings.Join(run.Skipped, ", "))
	}
	return sb.String(), nil
}

func getCatalog(registry *metrics.Registry) string {
	var sb strings.Builder
	sb.WriteString("# Metric Catalog\n\n")
	if registry == nil {
		sb.WriteString("No metric catalog loaded.\n")
		return sb.String()
	}

	byDomain := make(map[string][]metrics.Metric)
	for _, m := range registry.All() {
		byDomain[m.Domain] = append(byDomain[m.Domain], m)
	}
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, d := range domains {
		fmt.Fprintf(&sb, "## %s\n\n", d)
		sb.WriteString("| ID | Key | Name | Type | Direction |\n")
		sb.WriteString("|----|-----|------|------|-----------|\n")
		for _, m := range byDomain[d] {
			fmt.Fprintf(&sb, "| %d | `%s` | %s | %s | %s |\n", m.ID, m.Key, m.Name, m.Type, m.Direction)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Helper functions

func result(id any, payload map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  payload,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
