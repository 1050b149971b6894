package events

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload is returned (wrapped in a *PayloadError) when an event payload
// does not match the expected shape.
var ErrInvalidPayload = errors.New("invalid payload")

// payloadValidate is the validator instance for typed payload structs.
var payloadValidate *validator.Validate

func init() {
	payloadValidate = validator.New()

	// Report JSON field names instead of Go field names
	payloadValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// PayloadRule describes the optional payload-shape checks for one event type.
// The zero value performs no checks.
type PayloadRule struct {
	// Typed enables struct-tag validation of the canonical payload type
	// (ignored for non-canonical event types)
	Typed bool
	// Required lists payload keys that must be present
	Required []string
}

// IsZero reports whether the rule performs no checks.
func (r PayloadRule) IsZero() bool {
	return !r.Typed && len(r.Required) == 0
}

// PayloadError describes every problem found in one event payload.
type PayloadError struct {
	EventType EventType
	Problems  []string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid payload for %s: %s", e.EventType, strings.Join(e.Problems, "; "))
}

func (e *PayloadError) Unwrap() error {
	return ErrInvalidPayload
}

// ValidatePayload applies the payload-shape rule to the event.
// It is a separate layer from sequence validation: a payload problem never
// changes which events are considered to have occurred.
func ValidatePayload(event *AgentEvent, rule PayloadRule) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if rule.IsZero() {
		return nil
	}

	var problems []string

	for _, key := range rule.Required {
		if _, ok := event.Payload[key]; !ok {
			problems = append(problems, fmt.Sprintf("missing required key %q", key))
		}
	}

	if rule.Typed && event.Type.IsCanonical() {
		typed, err := typedPayload(event)
		if err != nil {
			problems = append(problems, err.Error())
		} else if err := payloadValidate.Struct(typed); err != nil {
			problems = append(problems, describeValidationError(err)...)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &PayloadError{EventType: event.Type, Problems: problems}
}

// typedPayload decodes the payload into the struct for a canonical event type.
func typedPayload(event *AgentEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeAgentStarted:
		return event.GetAgentStartedData()
	case EventTypeAgentThinking:
		return event.GetAgentThinkingData()
	case EventTypeToolExecuting:
		return event.GetToolExecutingData()
	case EventTypeToolCompleted:
		return event.GetToolCompletedData()
	case EventTypeAgentCompleted:
		return event.GetAgentCompletedData()
	default:
		return nil, fmt.Errorf("no typed payload for %s", event.Type)
	}
}

func describeValidationError(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			out = append(out, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return out
}
