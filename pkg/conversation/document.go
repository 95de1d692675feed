package conversation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-go-golems/chattier/pkg/helpers"
	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/pkg/errors"
)

// Document is the persisted form of a Conversation. Fields are declared in
// alphabetical order so the encoded keys are sorted.
type Document struct {
	Created          int64         `json:"created" jsonschema:"description=Unix timestamp the chat was created at"`
	FrequencyPenalty float64       `json:"frequency_penalty" jsonschema:"minimum=-2,maximum=2"`
	MaxContextTokens int           `json:"max_context_tokens" jsonschema:"description=Truncation budget net of max_tokens"`
	MaxTokens        int           `json:"max_tokens" jsonschema:"minimum=1,maximum=2048"`
	Messages         *DocumentNode `json:"messages" jsonschema:"description=The system message at the root of the tree"`
	Model            string        `json:"model"`
	PresencePenalty  float64       `json:"presence_penalty" jsonschema:"minimum=-2,maximum=2"`
	Temperature      float64       `json:"temperature" jsonschema:"minimum=0,maximum=1"`
	TopP             float64       `json:"top_p" jsonschema:"minimum=0,maximum=1"`
}

type DocumentNode struct {
	Content       string          `json:"content"`
	ContextTokens int             `json:"context_tokens"`
	Next          []*DocumentNode `json:"next"`
	Role          Role            `json:"role" jsonschema:"enum=system,enum=user,enum=assistant"`
	Selected      *int            `json:"selected" jsonschema:"description=Index into next of the active branch"`
	Tokens        int             `json:"tokens"`
}

// ResourceID is the name a conversation created at created is stored under.
func ResourceID(created int64) string {
	return fmt.Sprintf("%d.json", created)
}

// ParseResourceID extracts the creation timestamp from a resource name.
func ParseResourceID(id string) (int64, error) {
	created, err := strconv.ParseInt(strings.TrimSuffix(id, ".json"), 10, 64)
	if err != nil || !strings.HasSuffix(id, ".json") {
		return 0, errors.Errorf("%q is not a conversation resource", id)
	}
	return created, nil
}

func (c *Conversation) Document() *Document {
	var build func(id NodeID) *DocumentNode
	build = func(id NodeID) *DocumentNode {
		n := c.Tree.Nodes[id]
		dn := &DocumentNode{
			Content:       n.Content,
			ContextTokens: n.ContextTokens,
			Next:          make([]*DocumentNode, 0, len(n.Children)),
			Role:          n.Role,
			Tokens:        n.Tokens,
		}
		if n.Selected != nil {
			dn.Selected = helpers.ToPtr(*n.Selected)
		}
		for _, child := range n.Children {
			dn.Next = append(dn.Next, build(child))
		}
		return dn
	}

	return &Document{
		Created:          c.Created,
		FrequencyPenalty: c.Params.FrequencyPenalty,
		MaxContextTokens: c.Params.MaxContextTokens,
		MaxTokens:        c.Params.MaxTokens,
		Messages:         build(0),
		Model:            c.Model,
		PresencePenalty:  c.Params.PresencePenalty,
		Temperature:      c.Params.Temperature,
		TopP:             c.Params.TopP,
	}
}

// Marshal encodes the whole conversation, every branch included.
func Marshal(c *Conversation) ([]byte, error) {
	data, err := json.Marshal(c.Document())
	if err != nil {
		return nil, errors.Wrap(err, "could not encode conversation")
	}
	return data, nil
}

// Unmarshal decodes a document written by Marshal. Stored token counts are
// kept as they are; the tokenizer is bound again from the stored model using
// resolver, or tokens.ForModel when resolver is nil.
func Unmarshal(data []byte, resolver tokens.Resolver) (*Conversation, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation")
	}
	return FromDocument(&doc, resolver)
}

func FromDocument(doc *Document, resolver tokens.Resolver) (*Conversation, error) {
	if doc.Messages == nil {
		return nil, errors.Wrap(ErrInvalidDocument, "no messages")
	}
	if doc.Messages.Role != RoleSystem {
		return nil, errors.Wrapf(ErrInvalidDocument, "root has role %q", doc.Messages.Role)
	}

	tree := &Tree{}
	var add func(dn *DocumentNode, parent NodeID) error
	add = func(dn *DocumentNode, parent NodeID) error {
		if dn == nil {
			return errors.Wrap(ErrInvalidDocument, "empty message")
		}
		if !dn.Role.Valid() {
			return errors.Wrapf(ErrInvalidDocument, "message has role %q", dn.Role)
		}
		if dn.Selected != nil && (*dn.Selected < 0 || *dn.Selected >= len(dn.Next)) {
			return errors.Wrapf(ErrInvalidDocument, "selected %d with %d children", *dn.Selected, len(dn.Next))
		}

		n := &Node{
			ID:            NodeID(len(tree.Nodes)),
			Parent:        parent,
			Role:          dn.Role,
			Content:       dn.Content,
			Tokens:        dn.Tokens,
			ContextTokens: dn.ContextTokens,
		}
		if dn.Selected != nil {
			n.Selected = helpers.ToPtr(*dn.Selected)
		}
		tree.Nodes = append(tree.Nodes, n)
		if parent != NoNode {
			p := tree.Nodes[parent]
			p.Children = append(p.Children, n.ID)
		}

		for _, next := range dn.Next {
			if err := add(next, n.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(doc.Messages, NoNode); err != nil {
		return nil, err
	}

	c := &Conversation{
		Created: doc.Created,
		Model:   doc.Model,
		Params: settings.GenerationParams{
			Temperature:      doc.Temperature,
			TopP:             doc.TopP,
			MaxTokens:        doc.MaxTokens,
			MaxContextTokens: doc.MaxContextTokens,
			FrequencyPenalty: doc.FrequencyPenalty,
			PresencePenalty:  doc.PresencePenalty,
		},
		Tree:     tree,
		resolver: resolver,
	}
	if err := c.bind(); err != nil {
		return nil, err
	}
	return c, nil
}
