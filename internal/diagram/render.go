package diagram

import (
	"context"

	"github.com/rendis/autoflow/pkg/schema"
)

// Render dispatches to the renderer for format. Text formats return UTF-8.
func Render(ctx context.Context, model *DiagramModel, format Format) ([]byte, error) {
	switch format {
	case FormatMermaid, "":
		return []byte(RenderMermaid(model)), nil
	case FormatASCII:
		return []byte(RenderASCII(model)), nil
	case FormatPNG:
		return RenderImage(ctx, model)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format)
	}
}

// ContentType returns the MIME type of a rendered format.
func ContentType(format Format) string {
	if format == FormatPNG {
		return "image/png"
	}
	return "text/plain; charset=utf-8"
}
