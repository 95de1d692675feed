package conversation

import (
	"time"

	"github.com/go-go-golems/chattier/pkg/settings"
	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Conversation is a message tree together with the model and generation
// parameters it is completed with.
//
// Positions used by the operations below are indices into the selected path:
// the system root is position 0 and the first message after it is position 1.
type Conversation struct {
	// Created is the unix timestamp the conversation was started at. It never
	// changes and identifies the persisted resource.
	Created int64
	Model   string
	Params  settings.GenerationParams
	Tree    *Tree

	resolver tokens.Resolver
	counter  tokens.Counter
}

type Option func(*Conversation)

func WithCreated(created int64) Option {
	return func(c *Conversation) {
		c.Created = created
	}
}

func WithModel(model string) Option {
	return func(c *Conversation) {
		c.Model = model
	}
}

func WithParams(p settings.GenerationParams) Option {
	return func(c *Conversation) {
		c.Params = p
	}
}

// WithResolver sets how token counters are found for a model.
// The default is tokens.ForModel.
func WithResolver(r tokens.Resolver) Option {
	return func(c *Conversation) {
		c.resolver = r
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(c *Conversation) {
		c.Tree.Root().Content = prompt
	}
}

// New creates a conversation holding only its system message, with the
// embedded generation defaults unless overridden.
func New(options ...Option) (*Conversation, error) {
	d, err := settings.NewDefaults()
	if err != nil {
		return nil, err
	}

	c := &Conversation{
		Created:  time.Now().Unix(),
		Model:    d.Model,
		Params:   d.Params,
		Tree:     NewTree(""),
		resolver: tokens.ForModel,
	}
	for _, option := range options {
		option(c)
	}

	if err := c.bind(); err != nil {
		return nil, err
	}
	if err := c.recount(c.counter, 0, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conversation) bind() error {
	if c.resolver == nil {
		c.resolver = tokens.ForModel
	}
	counter, err := c.resolver(c.Model)
	if err != nil {
		return err
	}
	c.counter = counter
	return nil
}

// ID is the resource name the conversation is stored under.
func (c *Conversation) ID() string {
	return ResourceID(c.Created)
}

func (c *Conversation) Root() *Node {
	return c.Tree.Root()
}

// Counter is the token counter bound to the current model.
func (c *Conversation) Counter() tokens.Counter {
	return c.counter
}

func (c *Conversation) SelectedPath(limit int) []*Node {
	return c.Tree.SelectedPath(limit)
}

// ContextWindow returns the messages sent for completion: the selected path,
// capped at limit nodes when limit > 0, truncated to the token budget.
func (c *Conversation) ContextWindow(limit int) []*Node {
	return TruncateContext(c.SelectedPath(limit), c.Params.MaxContextTokens)
}

// AddMessage appends a message and makes it the active branch.
//
// With at == 0 the message is added after the last message of the selected
// path. Otherwise it becomes a new child of the message at position at-1,
// i.e. an alternative version of position at.
func (c *Conversation) AddMessage(content string, role Role, at int) (*Node, error) {
	if !role.Valid() {
		return nil, errors.Wrapf(ErrInvalidRole, "role %q", role)
	}

	path := c.SelectedPath(0)
	parent := path[len(path)-1]
	if at != 0 {
		if at < 1 || at > len(path) {
			return nil, errors.Wrapf(ErrInvalidPosition, "position %d with %d messages", at, len(path))
		}
		parent = path[at-1]
	}

	n, err := tokens.MessageTokens(c.counter, content)
	if err != nil {
		return nil, err
	}

	node := &Node{
		Role:          role,
		Content:       content,
		Tokens:        n,
		ContextTokens: parent.ContextTokens + parent.Tokens,
	}
	c.Tree.Attach(parent.ID, node)

	log.Debug().
		Int64("conversation", c.Created).
		Str("role", string(role)).
		Int("parent", int(parent.ID)).
		Int("tokens", n).
		Msg("added message")
	return node, nil
}

// positionParent returns the node owning position at, which must name a
// message of the selected path other than the root.
func (c *Conversation) positionParent(at int) (*Node, error) {
	if at == 0 {
		return nil, ErrRootImmutable
	}
	path := c.SelectedPath(0)
	if at < 1 || at >= len(path) {
		return nil, errors.Wrapf(ErrInvalidPosition, "position %d with %d messages", at, len(path))
	}
	return path[at-1], nil
}

// DeleteMessage removes the message at position at and everything below it.
func (c *Conversation) DeleteMessage(at int) error {
	parent, err := c.positionParent(at)
	if err != nil {
		return err
	}
	c.Tree.Detach(parent.ID, *parent.Selected)

	log.Debug().
		Int64("conversation", c.Created).
		Int("position", at).
		Int("nodes", c.Tree.Len()).
		Msg("deleted message")
	return nil
}

// EditMessage replaces the content at position at and recounts the tokens of
// the message and all of its descendants. Position 0 edits the system prompt.
func (c *Conversation) EditMessage(at int, content string) error {
	if at == 0 {
		return c.SetSystemPrompt(content)
	}
	parent, err := c.positionParent(at)
	if err != nil {
		return err
	}
	id, _ := parent.SelectedChild()
	return c.recount(c.counter, id, &content)
}

func (c *Conversation) SetSystemPrompt(content string) error {
	return c.recount(c.counter, 0, &content)
}

// CountTokens recomputes Tokens for id and Tokens and ContextTokens for all
// of its descendants. Nothing is changed if any message fails to encode.
func (c *Conversation) CountTokens(id NodeID) error {
	return c.recount(c.counter, id, nil)
}

type tokenCount struct {
	tokens  int
	context int
}

// recount computes the token fields of id and its subtree with counter, using
// content as the new text of id when not nil. The tree is only modified once
// every message has been encoded.
func (c *Conversation) recount(counter tokens.Counter, id NodeID, content *string) error {
	node, ok := c.Tree.Get(id)
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "node %d", id)
	}

	counts := map[NodeID]tokenCount{}
	err := c.Tree.Walk(id, func(n *Node) error {
		text := n.Content
		if n.ID == id && content != nil {
			text = *content
		}
		t, err := tokens.MessageTokens(counter, text)
		if err != nil {
			return err
		}

		context := 0
		if n.ID == id {
			if p, ok := c.Tree.Get(n.Parent); ok {
				context = p.ContextTokens + p.Tokens
			}
		} else {
			pc := counts[n.Parent]
			context = pc.context + pc.tokens
		}
		counts[n.ID] = tokenCount{tokens: t, context: context}
		return nil
	})
	if err != nil {
		return err
	}

	if content != nil {
		node.Content = *content
	}
	for nid, tc := range counts {
		n := c.Tree.Nodes[nid]
		n.Tokens = tc.tokens
		n.ContextTokens = tc.context
	}
	return nil
}

// Versions returns the active version index and the number of versions of
// the message at position at.
func (c *Conversation) Versions(at int) (selected int, count int, err error) {
	parent, err := c.positionParent(at)
	if err != nil {
		return 0, 0, err
	}
	return *parent.Selected, len(parent.Children), nil
}

// SelectVersion switches position at to another of its sibling versions.
// The path below it follows the selections stored in that branch.
func (c *Conversation) SelectVersion(at int, version int) error {
	parent, err := c.positionParent(at)
	if err != nil {
		return err
	}
	if version < 0 || version >= len(parent.Children) {
		return errors.Wrapf(ErrInvalidVersion, "version %d of %d", version, len(parent.Children))
	}
	*parent.Selected = version
	return nil
}

// SetModel binds the tokenizer of model and recounts the whole tree with it.
// On failure model, tokenizer and counts are unchanged.
func (c *Conversation) SetModel(model string) error {
	counter, err := c.resolver(model)
	if err != nil {
		return err
	}
	if err := c.recount(counter, 0, nil); err != nil {
		return err
	}
	c.Model = model
	c.counter = counter
	return nil
}

// SetParams validates and replaces the generation parameters.
func (c *Conversation) SetParams(p settings.GenerationParams) error {
	if err := p.Validate(c.Model); err != nil {
		return err
	}
	c.Params = p
	return nil
}

// Snapshot is a deep copy of the mutable state of a conversation.
type Snapshot struct {
	model   string
	params  settings.GenerationParams
	tree    *Tree
	counter tokens.Counter
}

func (c *Conversation) Snapshot() *Snapshot {
	return &Snapshot{
		model:   c.Model,
		params:  c.Params.Clone(),
		tree:    c.Tree.Clone(),
		counter: c.counter,
	}
}

// Restore puts the conversation back into the state captured by s.
func (c *Conversation) Restore(s *Snapshot) {
	c.Model = s.model
	c.Params = s.params.Clone()
	c.Tree = s.tree.Clone()
	c.counter = s.counter
}
