package conversation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-go-golems/chattier/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchedConversation(t *testing.T) *Conversation {
	t.Helper()
	c := newTestConversation(t, "you are terse")
	addMessages(t, c, "q1", "a1", "q2", "a2")
	_, err := c.AddMessage("q1 rephrased", RoleUser, 1)
	require.NoError(t, err)
	_, err = c.AddMessage("a1 for the rephrased question", RoleAssistant, 0)
	require.NoError(t, err)
	_, err = c.AddMessage("a1 regenerated", RoleAssistant, 2)
	require.NoError(t, err)
	require.NoError(t, c.SelectVersion(1, 0))

	c.Params.Temperature = 0.3
	c.Params.TopP = 0.9
	c.Params.FrequencyPenalty = -0.5
	c.Params.PresencePenalty = 1.25
	return c
}

func TestMarshalRoundTrip(t *testing.T) {
	c := branchedConversation(t)

	data, err := Marshal(c)
	require.NoError(t, err)

	loaded, err := Unmarshal(data, testResolver)
	require.NoError(t, err)

	assert.Equal(t, c.Created, loaded.Created)
	assert.Equal(t, c.Model, loaded.Model)
	assert.Equal(t, c.Params, loaded.Params)
	assert.Equal(t, c.Document(), loaded.Document())
	assert.Equal(t, pathContents(c.SelectedPath(0)), pathContents(loaded.SelectedPath(0)))
	require.Len(t, loaded.Root().Children, 2)
	requireConsistent(t, loaded)

	// the loaded conversation is fully usable
	_, err = loaded.AddMessage("q3", RoleUser, 0)
	require.NoError(t, err)
	requireConsistent(t, loaded)
}

func TestMarshalWritesSortedKeys(t *testing.T) {
	c := newTestConversation(t, "sys")

	data, err := Marshal(c)
	require.NoError(t, err)

	s := string(data)
	keys := []string{`"created"`, `"frequency_penalty"`, `"max_context_tokens"`, `"max_tokens"`,
		`"messages"`, `"model"`, `"presence_penalty"`, `"temperature"`, `"top_p"`}
	last := -1
	for _, k := range keys {
		i := strings.Index(s, k)
		require.Greater(t, i, last, k)
		last = i
	}
	assert.Contains(t, s, `"next":[]`)
	assert.Contains(t, s, `"selected":null`)
}

func TestUnmarshalLegacyDocument(t *testing.T) {
	data := []byte(`{"created": 1681000000, "frequency_penalty": 0.0, "max_context_tokens": 3584,
		"max_tokens": 512, "messages": {"content": "Be nice.", "context_tokens": 0, "next": [
			{"content": "Hi", "context_tokens": 7, "editing": false, "next": [], "role": "user", "selected": null, "tokens": 6},
			{"content": "Hello", "context_tokens": 7, "next": [], "role": "user", "selected": null, "tokens": 6}],
		"role": "system", "selected": 1, "tokens": 7},
		"model": "gpt-3.5-turbo", "presence_penalty": 0.0, "temperature": 0.7, "top_p": 1.0}`)

	c, err := Unmarshal(data, testResolver)
	require.NoError(t, err)

	assert.Equal(t, int64(1681000000), c.Created)
	assert.Equal(t, 3584, c.Params.MaxContextTokens)
	assert.Equal(t, []string{"Be nice.", "Hello"}, pathContents(c.SelectedPath(0)))
	assert.Equal(t, 7, c.SelectedPath(0)[1].ContextTokens)
	assert.Equal(t, 3, c.Tree.Len())
}

func TestUnmarshalRejectsBrokenDocuments(t *testing.T) {
	for name, data := range map[string]string{
		"no messages":        `{"created": 1, "model": "m"}`,
		"root not system":    `{"model": "m", "messages": {"role": "user", "next": []}}`,
		"selected too large": `{"model": "m", "messages": {"role": "system", "selected": 0, "next": []}}`,
		"unknown role":       `{"model": "m", "messages": {"role": "system", "selected": 0, "next": [{"role": "tool", "next": []}]}}`,
		"null child":         `{"model": "m", "messages": {"role": "system", "next": [null]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(data), testResolver)
			require.ErrorIs(t, err, ErrInvalidDocument)
		})
	}

	_, err := Unmarshal([]byte(`{"messages": `), testResolver)
	require.Error(t, err)
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}

func TestUnmarshalRebindsTokenizer(t *testing.T) {
	c := branchedConversation(t)
	require.NoError(t, c.SetModel("chars"))
	data, err := Marshal(c)
	require.NoError(t, err)

	loaded, err := Unmarshal(data, testResolver)
	require.NoError(t, err)
	n, err := loaded.Counter().Count("abcd")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	c.Model = "broken"
	data, err = Marshal(c)
	require.NoError(t, err)
	_, err = Unmarshal(data, testResolver)
	var ef *tokens.EncodingFailure
	require.ErrorAs(t, err, &ef)
}

func TestResourceID(t *testing.T) {
	assert.Equal(t, "1681000000.json", ResourceID(1681000000))

	created, err := ParseResourceID("1681000000.json")
	require.NoError(t, err)
	assert.Equal(t, int64(1681000000), created)

	for _, id := range []string{"chat_names.json", "1681000000", "x.json"} {
		_, err := ParseResourceID(id)
		assert.Error(t, err, id)
	}
}
