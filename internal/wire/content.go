package wire

// Client-facing content item kinds.
const (
	ContentText         = "text"
	ContentImage        = "image"
	ContentResourceLink = "resource_link"
	ContentResource     = "resource"
)

// Content is a client-facing content item. It is used both for prompt input
// and for message/thought chunks.
type Content struct {
	// Type is one of text, image, resource_link or resource.
	Type string `json:"type"`
	// Text is set for text items.
	Text string `json:"text,omitempty"`
	// Data is base64 image data for inline images.
	Data string `json:"data,omitempty"`
	// MimeType is the media type of Data or of a linked resource.
	MimeType string `json:"mimeType,omitempty"`
	// URI references a linked resource or a remote image.
	URI string `json:"uri,omitempty"`
	// Name is the display name of a linked resource.
	Name string `json:"name,omitempty"`
	// Resource is set for embedded resources.
	Resource *EmbeddedResource `json:"resource,omitempty"`
}

// EmbeddedResource is resource content inlined into a prompt.
type EmbeddedResource struct {
	URI      string `json:"uri"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Text returns a text content item.
func Text(text string) Content {
	return Content{Type: ContentText, Text: text}
}
