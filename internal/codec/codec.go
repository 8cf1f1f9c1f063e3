// Package codec serializes and deserializes record files: a delimited
// YAML header block followed by a free-form body (spec §4.1, §6.2). The
// codec has no knowledge of field semantics — it only knows the envelope.
package codec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Header is an ordered key/value block. It wraps a YAML mapping node so
// that field order observed on parse is preserved on re-encoding, which is
// what makes Stringify(Parse(f)) reproduce f for well-formed input.
type Header struct {
	node *yaml.Node
}

// NewHeader creates an empty header ready to accept fields via Set, in the
// order they are first set.
func NewHeader() *Header {
	return &Header{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// Set assigns key to value, preserving the key's existing position if it
// was already present, or appending it at the end if new.
func (h *Header) Set(key string, value any) error {
	valueNode := &yaml.Node{}
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("codec: encode field %q: %w", key, err)
	}
	for i := 0; i+1 < len(h.node.Content); i += 2 {
		if h.node.Content[i].Value == key {
			h.node.Content[i+1] = valueNode
			return nil
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	h.node.Content = append(h.node.Content, keyNode, valueNode)
	return nil
}

// Get decodes the value stored under key into out. ok is false when key is
// absent.
func (h *Header) Get(key string, out any) (ok bool, err error) {
	for i := 0; i+1 < len(h.node.Content); i += 2 {
		if h.node.Content[i].Value == key {
			if err := h.node.Content[i+1].Decode(out); err != nil {
				return true, fmt.Errorf("codec: decode field %q: %w", key, err)
			}
			return true, nil
		}
	}
	return false, nil
}

// Keys returns the header's keys in their current order.
func (h *Header) Keys() []string {
	keys := make([]string, 0, len(h.node.Content)/2)
	for i := 0; i+1 < len(h.node.Content); i += 2 {
		keys = append(keys, h.node.Content[i].Value)
	}
	return keys
}

// Parse splits text into a Header and a body. It fails when the leading and
// trailing "---" delimiters are missing or the header block is not
// well-formed YAML.
func Parse(text string) (*Header, string, error) {
	if !strings.HasPrefix(text, delimiter) {
		return nil, "", fmt.Errorf("codec: missing leading %q delimiter", delimiter)
	}
	rest := text[len(delimiter):]
	// rest begins right after the first delimiter; the header block runs
	// until a line that is exactly "---".
	idx := findClosingDelimiter(rest)
	if idx < 0 {
		return nil, "", fmt.Errorf("codec: missing closing %q delimiter", delimiter)
	}
	headerText := rest[:idx]
	body := rest[idx+len(closingMarker(rest, idx)):]
	body = strings.TrimPrefix(body, "\n")

	var node yaml.Node
	if strings.TrimSpace(headerText) == "" {
		node = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	} else {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(headerText), &doc); err != nil {
			return nil, "", fmt.Errorf("codec: malformed header: %w", err)
		}
		if len(doc.Content) == 0 {
			node = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		} else {
			node = *doc.Content[0]
			if node.Kind != yaml.MappingNode {
				return nil, "", fmt.Errorf("codec: header must be a mapping")
			}
		}
	}
	return &Header{node: &node}, body, nil
}

// findClosingDelimiter returns the byte offset, within rest, of the "\n---"
// line that closes the header block, or -1 if none exists.
func findClosingDelimiter(rest string) int {
	search := rest
	offset := 0
	for {
		i := strings.Index(search, "\n"+delimiter)
		if i < 0 {
			return -1
		}
		// Must be followed by end-of-string, "\n", or nothing else on the line.
		lineEnd := i + 1 + len(delimiter)
		if lineEnd == len(search) || search[lineEnd] == '\n' {
			return offset + i + 1 // +1 to skip the leading \n, start at "---"
		}
		offset += i + 1
		search = search[i+1:]
	}
}

func closingMarker(rest string, idx int) string {
	// idx points at the start of "---"; consume it plus the rest of its line.
	line := rest[idx:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		return line[:nl+1]
	}
	return line
}

// Stringify renders header and body back into record-file text. It is the
// inverse of Parse and reproduces the original bytes for well-formed input
// that this codec produced.
func Stringify(h *Header, body string) (string, error) {
	out, err := yaml.Marshal(h.node)
	if err != nil {
		return "", fmt.Errorf("codec: marshal header: %w", err)
	}
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.Write(out)
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.WriteString(body)
	return b.String(), nil
}
