package tool

import (
	"context"
	"fmt"
	"strings"
)

// Messenger reads and sends iMessages.
type Messenger interface {
	ReadMessages(ctx context.Context, contact string, count int) (string, error)
	SendMessage(ctx context.Context, contact, message string) (string, error)
}

// --- read_messages_from_imessage ---

type ReadMessagesTool struct {
	messenger    Messenger
	defaultCount int
}

func NewReadMessagesTool(m Messenger, defaultCount int) *ReadMessagesTool {
	if defaultCount <= 0 {
		defaultCount = 10
	}
	return &ReadMessagesTool{messenger: m, defaultCount: defaultCount}
}

func (t *ReadMessagesTool) Name() string { return "read_messages_from_imessage" }
func (t *ReadMessagesTool) Description() string {
	return "Read the most recent iMessages exchanged with a contact."
}
func (t *ReadMessagesTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"contact": {Type: "string", Description: "Buddy handle or name in Messages"},
		"count":   {Type: "integer", Description: fmt.Sprintf("How many messages to read (default %d)", t.defaultCount)},
	}, []string{"contact"})
}

func (t *ReadMessagesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	contact, err := requireString(args, "contact")
	if err != nil {
		return "", err
	}
	count, err := ArgsInt(args, "count", t.defaultCount)
	if err != nil {
		return "", err
	}
	return t.messenger.ReadMessages(ctx, contact, count)
}

// --- send_text_to_contact_on_imessage ---

type SendMessageTool struct {
	messenger Messenger
}

func NewSendMessageTool(m Messenger) *SendMessageTool {
	return &SendMessageTool{messenger: m}
}

func (t *SendMessageTool) Name() string { return "send_text_to_contact_on_imessage" }
func (t *SendMessageTool) Description() string {
	return "Send a text to a contact in iMessage. Look the contact up first if only a name is known."
}
func (t *SendMessageTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"contact": {Type: "string", Description: "Phone number, email or name of the recipient"},
		"message": {Type: "string", Description: "Text to send"},
		"input":   {Type: "string", Description: `Alternative form "contact,message", split on the first comma`},
	}, nil)
}

func (t *SendMessageTool) Payload(args map[string]any) string {
	contact, message := splitRecipient(args)
	return "to=" + contact + "\n" + message
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	contact, message := splitRecipient(args)
	if contact == "" {
		return "", errMissing("contact")
	}
	if message == "" {
		return "", errMissing("message")
	}
	return t.messenger.SendMessage(ctx, contact, message)
}

// splitRecipient prefers explicit contact/message arguments and falls back to
// the combined input form. Commas after the first belong to the message.
func splitRecipient(args map[string]any) (contact, message string) {
	contact = strings.TrimSpace(ArgsString(args, "contact"))
	message = ArgsString(args, "message")
	if contact != "" || message != "" {
		return contact, message
	}
	in := ArgsString(args, "input")
	c, m, _ := strings.Cut(in, ",")
	return strings.TrimSpace(c), m
}
