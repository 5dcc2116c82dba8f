package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ModelInvoker sends a transcript to the generative model and returns the
// content of its reply.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, transcript string) (ModelContent, error)
}

// ModelContent is the content of a model reply: either a TextContent or a
// FragmentContent. Normalize reduces either to one string.
type ModelContent interface {
	Normalize() string
}

// TextContent is a reply delivered as a single string.
type TextContent string

func (c TextContent) Normalize() string { return string(c) }

// FragmentContent is a reply delivered as an ordered list of fragments. The
// fragments are joined with newlines.
type FragmentContent []Fragment

func (c FragmentContent) Normalize() string {
	parts := make([]string, len(c))
	for i, f := range c {
		parts[i] = f.FragmentText()
	}
	return strings.Join(parts, "\n")
}

// Fragment is one element of a FragmentContent.
type Fragment interface {
	FragmentText() string
}

// TaggedFragment is a structured fragment such as {"type":"text","text":"..."}.
// A fragment without a text field contributes an empty string.
type TaggedFragment struct {
	Type    string
	Text    string
	HasText bool
}

func (f TaggedFragment) FragmentText() string {
	if !f.HasText {
		return ""
	}
	return f.Text
}

// OpaqueFragment is any other fragment value. It contributes its string form.
type OpaqueFragment struct {
	Value any
}

func (f OpaqueFragment) FragmentText() string {
	if s, ok := f.Value.(string); ok {
		return s
	}
	return fmt.Sprint(f.Value)
}

var errContentMissing = errors.New("reply has no content field")

// decodeReplyContent extracts the content field of a JSON reply body.
func decodeReplyContent(body []byte) (ModelContent, error) {
	var reply struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	if len(reply.Content) == 0 || bytes.Equal(reply.Content, []byte("null")) {
		return nil, errContentMissing
	}
	return decodeContent(reply.Content)
}

// decodeContent maps the dynamically shaped content field onto ModelContent.
// Strings stay strings, arrays become fragments, and any other value is kept
// as its JSON text.
func decodeContent(raw json.RawMessage) (ModelContent, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return TextContent(s), nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return TextContent(strings.TrimSpace(string(raw))), nil
	}

	fragments := make(FragmentContent, 0, len(items))
	for _, item := range items {
		fragments = append(fragments, decodeFragment(item))
	}
	return fragments, nil
}

func decodeFragment(raw json.RawMessage) Fragment {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if bytes.Equal(raw, []byte("null")) {
			return OpaqueFragment{Value: "None"}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return OpaqueFragment{Value: s}
		}
		// Numbers, booleans and arrays keep their JSON text.
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return OpaqueFragment{Value: string(raw)}
		}
		return OpaqueFragment{Value: buf.String()}
	}

	var f TaggedFragment
	if t, ok := fields["type"]; ok {
		_ = json.Unmarshal(t, &f.Type)
	}
	if t, ok := fields["text"]; ok {
		f.HasText = true
		if err := json.Unmarshal(t, &f.Text); err != nil {
			f.Text = string(t)
		}
	}
	return f
}
