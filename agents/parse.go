package agents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ForecastReply is the structured answer expected from the model
type ForecastReply struct {
	PredictedChangePct float64 `json:"predicted_change_pct"`
	Reason             string  `json:"reason"`
}

var (
	fencedBlock  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	singleQuoted = regexp.MustCompile(`'([^']*)'`)
)

// ParseForecastReply extracts a forecast from free-form model output. The
// reply may be wrapped in code fences or surrounded by prose; the first
// balanced JSON object is used. Both keys are required. Failures are
// returned as *AnalysisParseError.
func ParseForecastReply(raw string) (ForecastReply, error) {
	text := stripFences(strings.TrimSpace(raw))

	block, ok := firstObject(text)
	if !ok {
		return ForecastReply{}, &AnalysisParseError{Reason: "no JSON object in reply", Raw: raw}
	}

	fields, err := decodeObject(block)
	if err != nil {
		return ForecastReply{}, &AnalysisParseError{Reason: "invalid JSON: " + err.Error(), Raw: raw}
	}

	pctRaw, ok := fields["predicted_change_pct"]
	if !ok {
		return ForecastReply{}, &AnalysisParseError{Reason: "missing predicted_change_pct", Raw: raw}
	}
	pct, err := parsePercent(pctRaw)
	if err != nil {
		return ForecastReply{}, &AnalysisParseError{Reason: err.Error(), Raw: raw}
	}

	reasonRaw, ok := fields["reason"]
	if !ok {
		return ForecastReply{}, &AnalysisParseError{Reason: "missing reason", Raw: raw}
	}
	var reason string
	if err := json.Unmarshal(reasonRaw, &reason); err != nil {
		return ForecastReply{}, &AnalysisParseError{Reason: "reason is not a string", Raw: raw}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ForecastReply{}, &AnalysisParseError{Reason: "reason is blank", Raw: raw}
	}

	return ForecastReply{PredictedChangePct: pct, Reason: reason}, nil
}

func stripFences(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			return strings.TrimSpace(text[nl+1:])
		}
	}
	return text
}

// firstObject returns the first balanced {...} block, ignoring braces inside
// double-quoted strings.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeObject unmarshals a JSON object, retrying once with single quotes
// turned into double quotes.
func decodeObject(block string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal([]byte(block), &fields)
	if err == nil {
		return fields, nil
	}

	converted := singleQuoted.ReplaceAllString(block, `"$1"`)
	if converted == block {
		return nil, err
	}
	fields = nil
	if err2 := json.Unmarshal([]byte(converted), &fields); err2 != nil {
		return nil, err
	}
	return fields, nil
}

// parsePercent accepts a JSON number or a numeric string such as "+2.5%"
func parsePercent(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("predicted_change_pct is null")
	}

	var pct float64
	if err := json.Unmarshal(raw, &pct); err == nil {
		return pct, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("predicted_change_pct is not a number: %s", raw)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	pct, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, fmt.Errorf("predicted_change_pct is not numeric: %q", s)
	}
	return pct, nil
}
