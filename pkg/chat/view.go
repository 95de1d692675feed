package chat

import (
	"bytes"
	"strings"

	"github.com/go-go-golems/chattier/pkg/conversation"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// MessageView is one message of the selected path, ready for display.
type MessageView struct {
	Position      int    `json:"position"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	HTML          string `json:"html"`
	Tokens        int    `json:"tokens"`
	ContextTokens int    `json:"context_tokens"`
	Version       int    `json:"version"`
	Versions      int    `json:"versions"`
	// InContext is set for messages sent with the next completion.
	InContext bool `json:"in_context"`
}

// View is the state of a chat as the user interface shows it. It is rebuilt
// after every change instead of being updated.
type View struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	Created      int64                     `json:"created"`
	Model        string                    `json:"model"`
	Params       settings.GenerationParams `json:"params"`
	SystemPrompt string                    `json:"system_prompt"`
	SystemTokens int                       `json:"system_tokens"`
	// ContextTokens is the size of the context the next completion sends.
	ContextTokens int           `json:"context_tokens"`
	Messages      []MessageView `json:"messages"`
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

func NewView(c *conversation.Conversation, name string) (*View, error) {
	path := c.SelectedPath(0)
	window := c.ContextWindow(0)
	inContext := make(map[conversation.NodeID]bool, len(window))
	for _, n := range window {
		inContext[n.ID] = true
	}

	v := &View{
		ID:            c.ID(),
		Name:          name,
		Created:       c.Created,
		Model:         c.Model,
		Params:        c.Params,
		SystemPrompt:  c.Root().Content,
		SystemTokens:  c.Root().Tokens,
		ContextTokens: conversation.ContextTotal(window),
		Messages:      make([]MessageView, 0, len(path)-1),
	}

	for i, n := range path[1:] {
		at := i + 1
		version, versions, err := c.Versions(at)
		if err != nil {
			return nil, err
		}
		rendered, err := RenderMarkdown(n.Content)
		if err != nil {
			return nil, err
		}
		v.Messages = append(v.Messages, MessageView{
			Position:      at,
			Role:          string(n.Role),
			Content:       n.Content,
			HTML:          rendered,
			Tokens:        n.Tokens,
			ContextTokens: n.ContextTokens,
			Version:       version,
			Versions:      versions,
			InContext:     inContext[n.ID],
		})
	}
	return v, nil
}

// RenderMarkdown converts message content to HTML. Outside of fenced code
// blocks every line break starts a new paragraph, the way chat replies are
// usually meant to be read. Raw HTML is passed through.
func RenderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(breakLines(content)), &buf); err != nil {
		return "", errors.Wrap(err, "could not render markdown")
	}
	return buf.String(), nil
}

func breakLines(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, 2*len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line, "")
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
