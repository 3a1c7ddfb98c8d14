// Package tools implements the tool families available to the model:
// built-in in-process tools and community tools stored as HTTP call
// specs. The registry is what the generation pipeline executes against.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
	"hugchat/internal/llm"
)

// Tool is one executable tool. Implementations must be safe for
// concurrent use and respect context cancellation.
type Tool interface {
	Name() string
	Definition() llm.ToolDefinition

	// Execute runs the tool. The returned value must be JSON-serializable.
	Execute(ctx context.Context, input map[string]interface{}) (interface{}, error)
}

// Registry resolves tool calls against built-in tools and stored
// community tools. Thread-safe.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Tool

	toolRepo repositories.ToolRepository // nil disables community tools
	runner   *ConfigToolRunner
	logger   *slog.Logger
}

// NewRegistry creates a registry. toolRepo may be nil to disable
// community tools.
func NewRegistry(toolRepo repositories.ToolRepository, runner *ConfigToolRunner, logger *slog.Logger) *Registry {
	return &Registry{
		builtins: make(map[string]Tool),
		toolRepo: toolRepo,
		runner:   runner,
		logger:   logger,
	}
}

// Register adds a built-in tool, replacing any existing tool of the same
// name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[t.Name()] = t
}

// Definitions advertises every available tool: built-ins plus stored
// community tools. A repository failure degrades to built-ins only.
func (r *Registry) Definitions(ctx context.Context) []llm.ToolDefinition {
	r.mu.RLock()
	defs := make([]llm.ToolDefinition, 0, len(r.builtins))
	for _, t := range r.builtins {
		defs = append(defs, t.Definition())
	}
	r.mu.RUnlock()

	for _, spec := range r.communityTools(ctx) {
		defs = append(defs, specDefinition(&spec))
	}
	return defs
}

// Execute runs one tool call, dispatching to a built-in or a stored
// community tool.
func (r *Registry) Execute(ctx context.Context, call *llm.ToolCallRequest) (interface{}, error) {
	r.mu.RLock()
	builtin, ok := r.builtins[call.Name]
	r.mu.RUnlock()
	if ok {
		return builtin.Execute(ctx, call.Arguments)
	}

	if r.runner != nil {
		for _, spec := range r.communityTools(ctx) {
			if spec.Name == call.Name {
				return r.runner.Run(ctx, &spec, call.Arguments)
			}
		}
	}
	return nil, fmt.Errorf("tool not found: %s", call.Name)
}

func (r *Registry) communityTools(ctx context.Context) []models.ToolSpec {
	if r.toolRepo == nil {
		return nil
	}
	specs, err := r.toolRepo.ListTools(ctx, "")
	if err != nil {
		r.logger.Warn("failed to list community tools", "error", err)
		return nil
	}
	return specs
}

// specDefinition converts a stored tool spec into the schema advertised
// to the model.
func specDefinition(spec *models.ToolSpec) llm.ToolDefinition {
	properties := make(map[string]any, len(spec.Inputs))
	var required []string
	for _, input := range spec.Inputs {
		properties[input.Name] = map[string]any{
			"type":        input.Type,
			"description": input.Description,
		}
		if input.Required {
			required = append(required, input.Name)
		}
	}
	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}
	return llm.ToolDefinition{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  parameters,
	}
}
