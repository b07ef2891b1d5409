// Package llm wraps the OpenAI API for the two generation tasks the
// backend exposes: the personalized reminder sentence and the small
// constrained chat endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyReply = errors.New("empty llm reply")

const (
	DefaultReminderModel = "gpt-4o-mini"
	DefaultChatModel     = "gpt-4.1-mini"
)

type Config struct {
	APIKey        string
	BaseURL       string
	ReminderModel string
	ChatModel     string
	Timeout       time.Duration
}

type Client struct {
	api           *openai.Client
	reminderModel string
	chatModel     string
	timeout       time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientConfig.BaseURL = strings.TrimRight(base, "/")
	}
	reminderModel := strings.TrimSpace(cfg.ReminderModel)
	if reminderModel == "" {
		reminderModel = DefaultReminderModel
	}
	chatModel := strings.TrimSpace(cfg.ChatModel)
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		api:           openai.NewClientWithConfig(clientConfig),
		reminderModel: reminderModel,
		chatModel:     chatModel,
		timeout:       timeout,
	}, nil
}

// ReminderPrompt carries everything the model needs to write the
// two-sentence reminder. The encouragement phrase and time-of-day label
// are chosen by the caller so the fallback text matches.
type ReminderPrompt struct {
	UserName       string
	MedicationName string
	Purpose        string
	TimeOfDay      string
	Encouragement  string
	CurrentStreak  int
	MissedLastWeek int
}

const reminderSystemPrompt = "You create warm, encouraging medication reminders for older adults.\n\n" +
	"Requirements:\n" +
	"- Reading level: 8-10 year old (very simple language).\n" +
	"- You MUST write exactly two short sentences.\n" +
	"- Sentence 1: clearly tell them it's time to take their medication, " +
	"using the given time-of-day label (morning/afternoon/evening) and purpose if provided.\n" +
	"- Sentence 2: start with the given encouragement phrase and then use streak/missed info.\n" +
	"- Always include the verb 'take'.\n" +
	"- Use the person's name exactly as given."

// PersonalizedReminder asks the model for the two-sentence reminder.
// Callers keep their own fallback; any error here is recoverable.
func (c *Client) PersonalizedReminder(ctx context.Context, prompt ReminderPrompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	purpose := strings.TrimSpace(prompt.Purpose)
	if purpose == "" {
		purpose = "unknown"
	}
	userPrompt := fmt.Sprintf(
		"Name: %s\nMedication: %s\nPurpose: %s\nTime-of-day label to use in sentence 1: %s\n"+
			"Current streak (days in a row taken): %d\nMissed doses in last week: %d\n"+
			"Encouragement phrase to START sentence 2 with: %q\n"+
			"Write exactly two sentences. Example style: 'Hey Tiff, it's time to take your morning Aspirin for your pain relief. "+
			"You're doing the right thing for your health, and you've kept up 5 days in a row.'",
		prompt.UserName,
		prompt.MedicationName,
		purpose,
		prompt.TimeOfDay,
		prompt.CurrentStreak,
		prompt.MissedLastWeek,
		prompt.Encouragement,
	)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.reminderModel,
		Temperature: 0.6,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reminderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	message := strings.TrimSpace(resp.Choices[0].Message.Content)
	if message == "" {
		return "", ErrEmptyReply
	}
	return message, nil
}

// Chat forwards a single user message and returns the trimmed reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
