package tools

import (
	"context"
	"errors"

	"hugchat/internal/llm"
)

// GalleryTool is a display tool: the model calls it to present a set of
// image URLs as a gallery. Execution validates the arguments and echoes
// them back as the display payload; rendering happens client-side.
type GalleryTool struct{}

// NewGalleryTool creates the gallery display tool.
func NewGalleryTool() *GalleryTool { return &GalleryTool{} }

func (t *GalleryTool) Name() string { return "imageGallery" }

func (t *GalleryTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: "Display a set of image URLs to the user as a gallery.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"images": map[string]any{
					"type":        "array",
					"description": "Image URLs to display",
					"items":       map[string]any{"type": "string"},
				},
				"caption": map[string]any{
					"type":        "string",
					"description": "Optional caption shown under the gallery",
				},
			},
			"required": []string{"images"},
		},
	}
}

func (t *GalleryTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	rawImages, ok := input["images"].([]interface{})
	if !ok || len(rawImages) == 0 {
		return nil, errors.New("missing required parameter: images (array of strings)")
	}

	images := make([]string, 0, len(rawImages))
	for _, raw := range rawImages {
		s, ok := raw.(string)
		if !ok || s == "" {
			return nil, errors.New("images must be non-empty strings")
		}
		images = append(images, s)
	}

	payload := map[string]any{
		"display": "gallery",
		"images":  images,
	}
	if caption, ok := input["caption"].(string); ok && caption != "" {
		payload["caption"] = caption
	}
	return payload, nil
}
