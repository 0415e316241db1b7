package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/example/command-translator/internal/models"
)

// MockClient answers from keywords in the request, without any network. It
// is selected only with LLM_PROVIDER=mock and is handy for local demos.
type MockClient struct{}

var (
	mockRooms  = []string{"living room", "kitchen", "bedroom", "bathroom", "office", "garage", "hallway"}
	mockNumber = regexp.MustCompile(`\d+`)
)

func (m *MockClient) Name() string { return ProviderMock }

func (m *MockClient) Invoke(ctx context.Context, p models.Prompt) (models.RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return models.RawOutput{}, err
	}
	req := strings.ToLower(lastUserText(p))
	location := "home"
	for _, room := range mockRooms {
		if strings.Contains(req, room) {
			location = strings.ReplaceAll(room, " ", "_")
			break
		}
	}

	cmd := map[string]any{"location": location}
	switch {
	case strings.Contains(req, "light") || strings.Contains(req, "lamp"):
		cmd["device"] = "lights"
		cmd["action"] = "turn_on"
		if strings.Contains(req, " off") || strings.Contains(req, "dim") {
			cmd["action"] = "turn_off"
		}
	case strings.Contains(req, "timer"):
		cmd["device"] = "timer"
		cmd["action"] = "set_timer"
		if n := mockNumber.FindString(req); n != "" {
			minutes, _ := strconv.Atoi(n)
			cmd["parameters"] = map[string]any{"duration_minutes": minutes}
		}
	case strings.Contains(req, "thermostat") || strings.Contains(req, "temperature") || strings.Contains(req, "degrees"):
		cmd["device"] = "thermostat"
		cmd["action"] = "set_temperature"
		if n := mockNumber.FindString(req); n != "" {
			degrees, _ := strconv.Atoi(n)
			cmd["parameters"] = map[string]any{"celsius": degrees}
		}
	case strings.Contains(req, "lock") || strings.Contains(req, "door"):
		cmd["device"] = "door"
		cmd["action"] = "lock"
		if strings.Contains(req, "unlock") {
			cmd["action"] = "unlock"
		}
	case strings.Contains(req, "music") || strings.Contains(req, "play"):
		cmd["device"] = "speaker"
		cmd["action"] = "play_music"
	case strings.Contains(req, "weather"):
		cmd["device"] = "assistant"
		cmd["action"] = "get_weather"
	default:
		cmd["device"] = "assistant"
		cmd["action"] = "unknown"
	}

	b, err := json.Marshal(cmd)
	if err != nil {
		return models.RawOutput{}, err
	}
	return models.RawOutput{Text: string(b), Model: ProviderMock, FinishReason: "stop"}, nil
}

// lastUserText returns the newest user message with template labels removed.
func lastUserText(p models.Prompt) string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role != models.RoleUser {
			continue
		}
		text := p.Messages[i].Content
		if idx := strings.Index(text, ":"); idx != -1 && idx < 40 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "\n"); idx != -1 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	return ""
}
