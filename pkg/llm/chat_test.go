package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/pkg/llm"
)

type fakeCompleter struct {
	response *llms.ContentResponse
	err      error
	stream   []string

	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeCompleter) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	f.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&f.options)
	}
	if f.options.StreamingFunc != nil {
		for _, s := range f.stream {
			if err := f.options.StreamingFunc(ctx, []byte(s)); err != nil {
				return nil, err
			}
		}
	}
	return f.response, f.err
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func humanText(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.Equal(t, llms.ChatMessageTypeHuman, msg.Role)
	require.Len(t, msg.Parts, 1)
	part, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config llm.ChatConfig
	}{
		{"temperature too high", llm.ChatConfig{Temperature: 1.5}},
		{"negative temperature", llm.ChatConfig{Temperature: -0.1}},
		{"negative max tokens", llm.ChatConfig{MaxTokens: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := llm.New(&fakeCompleter{}, tt.config, nil)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}

	_, err := llm.New(nil, llm.ChatConfig{}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestNewWithConfig_UnknownProvider(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Provider: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestGenerate(t *testing.T) {
	fake := &fakeCompleter{response: answer("Forward kinematics maps joint angles to poses.")}
	engine, err := llm.New(fake, llm.ChatConfig{}, nil)
	require.NoError(t, err)

	hits := []models.SearchHit{
		{Content: "Kinematics studies motion."},
		{Content: "Joint angles define a pose."},
	}
	got := engine.Generate(context.Background(), "What is forward kinematics?", hits, 0.3)

	assert.Equal(t, "Forward kinematics maps joint angles to poses.", got)
	assert.Equal(t, 1, fake.calls)
	assert.InDelta(t, 0.3, fake.options.Temperature, 1e-9)
	assert.Equal(t, 500, fake.options.MaxTokens)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	prompt := humanText(t, fake.messages[1])
	assert.Contains(t, prompt, "Kinematics studies motion.\n\nJoint angles define a pose.")
	assert.Contains(t, prompt, "User question: What is forward kinematics?")
	assert.Contains(t, prompt, "say so clearly")
}

func TestGenerate_Fallback(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeCompleter
	}{
		{"error", &fakeCompleter{err: errors.New("connection refused")}},
		{"nil response", &fakeCompleter{}},
		{"no choices", &fakeCompleter{response: &llms.ContentResponse{}}},
		{"empty content", &fakeCompleter{response: answer("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.New(tt.fake, llm.ChatConfig{}, nil)
			require.NoError(t, err)

			got := engine.Generate(context.Background(), "what is ZMP?", nil, 0.7)
			assert.Equal(t, "I encountered an error processing your request. The query was: what is ZMP?", got)
		})
	}
}

func TestGenerateStream(t *testing.T) {
	fake := &fakeCompleter{
		response: answer("Balance uses the zero moment point."),
		stream:   []string{"Balance uses ", "the zero ", "moment point."},
	}
	engine, err := llm.New(fake, llm.ChatConfig{MaxTokens: 120}, nil)
	require.NoError(t, err)

	var streamed []string
	got := engine.GenerateStream(context.Background(), "How do humanoids balance?", nil, 0.7, func(s string) {
		streamed = append(streamed, s)
	})

	assert.Equal(t, "Balance uses the zero moment point.", got)
	assert.Equal(t, got, strings.Join(streamed, ""))
	assert.Equal(t, 120, fake.options.MaxTokens)
}

func TestPrompt_CustomTemplate(t *testing.T) {
	engine, err := llm.New(&fakeCompleter{}, llm.ChatConfig{ContextTemplate: "C[%s] Q[%s]"}, nil)
	require.NoError(t, err)

	got := engine.Prompt("why?", []models.SearchHit{{Content: "a"}, {Content: "b"}})
	assert.Equal(t, "C[a\n\nb] Q[why?]", got)
}
