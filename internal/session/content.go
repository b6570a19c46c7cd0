package session

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/bhandras/delight-acp/internal/wire"
)

// promptBlocks converts client prompt content into upstream content blocks.
// Embedded resource text is appended as context blocks after the prompt.
func promptBlocks(content []wire.Content) []wire.ContentBlock {
	var blocks, context []wire.ContentBlock
	for _, item := range content {
		switch item.Type {
		case wire.ContentText:
			if item.Text != "" {
				blocks = append(blocks, wire.ContentBlock{Type: wire.BlockText, Text: item.Text})
			}

		case wire.ContentImage:
			if block, ok := imageBlock(item); ok {
				blocks = append(blocks, block)
			}

		case wire.ContentResourceLink:
			blocks = append(blocks, wire.ContentBlock{Type: wire.BlockText, Text: resourceLink(item.URI, item.Name)})

		case wire.ContentResource:
			res := item.Resource
			if res == nil || res.Text == "" {
				continue
			}
			blocks = append(blocks, wire.ContentBlock{Type: wire.BlockText, Text: resourceLink(res.URI, "")})
			context = append(context, wire.ContentBlock{
				Type: wire.BlockText,
				Text: fmt.Sprintf("\n<context ref=%q>\n%s\n</context>", res.URI, res.Text),
			})
		}
	}
	return append(blocks, context...)
}

func imageBlock(item wire.Content) (wire.ContentBlock, bool) {
	switch {
	case item.Data != "":
		return wire.ContentBlock{Type: wire.BlockImage, Fields: map[string]any{
			"source": map[string]any{
				"type":       "base64",
				"data":       item.Data,
				"media_type": item.MimeType,
			},
		}}, true
	case strings.HasPrefix(item.URI, "http://") || strings.HasPrefix(item.URI, "https://"):
		return wire.ContentBlock{Type: wire.BlockImage, Fields: map[string]any{
			"source": map[string]any{"type": "url", "url": item.URI},
		}}, true
	}
	return wire.ContentBlock{}, false
}

// resourceLink renders a resource reference as a markdown mention.
func resourceLink(uri, name string) string {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "file" && u.Scheme != "zed") {
		return uri
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	return fmt.Sprintf("[@%s](%s)", name, uri)
}
