package tool

import "context"

type Speaker interface {
	Say(ctx context.Context, text string) (string, error)
}

// SayTool speaks text aloud through the system voice.
type SayTool struct {
	speaker Speaker
}

func NewSayTool(s Speaker) *SayTool {
	return &SayTool{speaker: s}
}

func (t *SayTool) Name() string        { return "say_text" }
func (t *SayTool) Description() string { return "Speak a short text aloud on the computer." }
func (t *SayTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"text": {Type: "string", Description: "Text to speak"},
	}, []string{"text"})
}

func (t *SayTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	text, err := requireString(args, "text")
	if err != nil {
		return "", err
	}
	return t.speaker.Say(ctx, text)
}
