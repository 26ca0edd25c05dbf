// Package core provides the execution result model for scenario-runner.
package core

// ResourceType classifies the content of an embedded attachment.
type ResourceType string

// Resource types for embedded attachments.
const (
	ResourcePNG    ResourceType = "png"
	ResourceMP4    ResourceType = "mp4"
	ResourceJSON   ResourceType = "json"
	ResourceText   ResourceType = "txt"
	ResourceBinary ResourceType = ""
)

// Extension returns the file extension for the resource type, without the
// leading dot. Binary attachments have no extension.
func (r ResourceType) Extension() string {
	return string(r)
}

// ContentType returns the MIME type for the resource type.
func (r ResourceType) ContentType() string {
	switch r {
	case ResourcePNG:
		return "image/png"
	case ResourceMP4:
		return "video/mp4"
	case ResourceJSON:
		return "application/json"
	case ResourceText:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Embed is a binary attachment captured during execution and persisted to a
// file. Ownership transfers to the step result it is attached to.
type Embed struct {
	Path         string       `json:"path"` // File path relative to the report dir
	ResourceType ResourceType `json:"resourceType"`
	Bytes        []byte       `json:"-"`
}
