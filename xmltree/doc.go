// Package xmltree parses API responses into a lightweight element tree.
//
// The API speaks attribute-light XML where almost everything of interest
// is a tag with text content, so [Node] favors child lookup by tag name
// over a full DOM. [Parse] reads a whole document; [Chunk] streams the
// root's direct children one at a time without holding the document in
// memory, which is how multi-hundred-megabyte daily dumps are consumed.
package xmltree
