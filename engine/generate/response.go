package generate

import (
	"fmt"
	"strings"
)

// Kind tags which shape a backend response arrived in.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPlain is a bare string.
	KindPlain
	// KindBlocks is a list of content parts.
	KindBlocks
	// KindContent carries a content attribute.
	KindContent
	// KindText carries a text attribute.
	KindText
	// KindMessage wraps a chat message.
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindBlocks:
		return "blocks"
	case KindContent:
		return "content"
	case KindText:
		return "text"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Block is one part of a multi-part response.
type Block struct {
	Type    string
	Content string
	Text    string
}

// Message is a chat message returned as a whole.
type Message struct {
	Role    string
	Content string
}

// Response is a backend reply in one of several shapes. Only the field
// matching Kind is meaningful; Raw keeps the untouched upstream value.
type Response struct {
	Kind    Kind
	Plain   string
	Blocks  []Block
	Content string
	Text    string
	Message *Message
	Raw     any
}

// Normalize reduces a Response to plain text.
func Normalize(r Response) string {
	switch {
	case r.Kind == KindPlain:
		return r.Plain
	case r.Kind == KindBlocks && len(r.Blocks) > 0:
		parts := make([]string, len(r.Blocks))
		for i, b := range r.Blocks {
			if b.Content != "" {
				parts[i] = b.Content
			} else {
				parts[i] = b.Text
			}
		}
		return strings.Join(parts, "\n")
	case r.Kind == KindContent:
		return r.Content
	case r.Kind == KindText:
		return r.Text
	case r.Kind == KindMessage && r.Message != nil:
		if r.Message.Content != "" {
			return r.Message.Content
		}
		return fmt.Sprint(*r.Message)
	case r.Raw != nil:
		return fmt.Sprint(r.Raw)
	default:
		return ""
	}
}
