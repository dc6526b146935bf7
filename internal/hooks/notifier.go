package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mattsolo1/han-bridge/internal/models"
)

// Notification is a rendered validation message addressed to the host.
type Notification struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Message   string `json:"message"`
}

// Notifier delivers notifications to the host. Delivery is best-effort:
// the bridge logs errors and carries on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// EncodeResponse renders n in the JSON shape the host expects for its
// lifecycle event.
func EncodeResponse(n Notification) ([]byte, error) {
	var resp any
	switch n.Event {
	case models.EventPreToolUse:
		resp = PreToolUseResponse{HookSpecificOutput: PreToolUseOutput{
			HookEventName:            models.EventPreToolUse,
			PermissionDecision:       "deny",
			PermissionDecisionReason: n.Message,
		}}
	case models.EventPostToolUse:
		resp = PostToolUseResponse{
			Decision: "block",
			Reason:   n.Message,
			HookSpecificOutput: PostToolUseOutput{
				HookEventName:     models.EventPostToolUse,
				AdditionalContext: n.Message,
			},
		}
	case models.EventStop, models.EventSubagentStop:
		resp = StopResponse{Decision: "block", Reason: n.Message}
	default:
		return nil, fmt.Errorf("no response format for event %q", n.Event)
	}
	return json.Marshal(resp)
}

// ResponseNotifier writes host-format JSON responses, one per line.
type ResponseNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewResponseNotifier(w io.Writer) *ResponseNotifier {
	return &ResponseNotifier{w: w}
}

func (r *ResponseNotifier) Notify(_ context.Context, n Notification) error {
	data, err := EncodeResponse(n)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintln(r.w, string(data)); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// StreamNotifier writes notifications as NDJSON lines for serve mode.
type StreamNotifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewStreamNotifier(w io.Writer) *StreamNotifier {
	return &StreamNotifier{enc: json.NewEncoder(w)}
}

func (s *StreamNotifier) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(n); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}
