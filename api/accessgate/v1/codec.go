package accessgatev1

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// Encode converts a JSON-serializable value into a Struct message.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("accessgatev1: encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("accessgatev1: encode: not an object: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("accessgatev1: encode: %w", err)
	}
	return s, nil
}

// Decode fills v from a Struct message using v's JSON tags. A nil message
// leaves v unchanged.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("accessgatev1: decode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("accessgatev1: decode: %w", err)
	}
	return nil
}

// Fields a request must carry explicitly. Levels decode to their lowest
// value when absent, which would widen access or skip redaction.
var (
	EvaluateRequiredFields = []string{"requester_clearance", "resource_sensitivity"}
	RedactRequiredFields   = []string{"clearance"}
)

// RequireFields reports the named keys that are absent or null in s.
func RequireFields(s *structpb.Struct, names ...string) error {
	var missing []string
	for _, name := range names {
		v, ok := s.GetFields()[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("accessgatev1: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
