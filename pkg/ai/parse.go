package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const gradeSchema = `{
  "type": "object",
  "required": ["grade"],
  "properties": {
    "grade": {
      "anyOf": [
        {"type": "number", "minimum": 0},
        {"type": "string", "pattern": "^\\s*[0-9]+(\\.[0-9]+)?\\s*$"}
      ]
    },
    "feedback": {"type": "string"}
  }
}`

var gradeValidator = jsonschema.MustCompileString("grade.schema.json", gradeSchema)

// ParseGradeResponse extracts a grade and feedback from raw model output.
// It accepts a bare {"grade","feedback"} object or a {"results": [...]}
// envelope, in which case the first result is used.
func ParseGradeResponse(raw string) (GradeResponse, error) {
	body := extractObject(stripCodeFences(raw))
	if body == "" {
		return GradeResponse{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return GradeResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return GradeResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	object, ok := decoded.(map[string]interface{})
	if !ok {
		return GradeResponse{}, fmt.Errorf("%w: top level is not an object", ErrMalformedResponse)
	}

	if results, ok := object["results"].([]interface{}); ok {
		if len(results) == 0 {
			return GradeResponse{}, fmt.Errorf("%w: empty results", ErrMalformedResponse)
		}
		first, ok := results[0].(map[string]interface{})
		if !ok {
			return GradeResponse{}, fmt.Errorf("%w: result is not an object", ErrMalformedResponse)
		}
		object = first
	}

	if err := gradeValidator.Validate(object); err != nil {
		return GradeResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	grade, err := toFloat(object["grade"])
	if err != nil {
		return GradeResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	feedback, _ := object["feedback"].(string)

	return GradeResponse{
		Grade:    grade,
		Feedback: strings.TrimSpace(feedback),
		Raw:      raw,
	}, nil
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported grade type %T", value)
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 {
		return ""
	}
	if end < start {
		// truncated output; let the repair step close it
		return s[start:]
	}
	return s[start : end+1]
}
