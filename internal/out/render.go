// Package out renders the response envelope. JSON is the default surface;
// plain mode flattens each record to sorted key=value pairs for shell
// pipelines, using the same dotted paths --select addresses.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ggonzalez94/swap-cli/internal/config"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.OutputMode == "json" {
		if settings.ResultsOnly {
			return writeJSON(w, data)
		}
		env.Data = data
		return writeJSON(w, env)
	}

	if settings.ResultsOnly {
		return renderPlain(w, data)
	}
	plain := map[string]any{
		"success":  env.Success,
		"data":     data,
		"warnings": env.Warnings,
		"meta":     env.Meta,
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return renderPlain(w, plain)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPlain(w io.Writer, data any) error {
	switch t := normalizeValue(data).(type) {
	case []any:
		if len(t) == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for _, item := range t {
			if err := writeLine(w, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeLine(w, t)
	}
}

func writeLine(w io.Writer, v any) error {
	line, err := toLine(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, line)
	return err
}

// toLine flattens one record into sorted key=value pairs. Nested objects
// contribute dotted keys like output_amount.amount_decimal; arrays stay
// compact JSON.
func toLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}

	pairs := map[string]string{}
	if err := flattenInto(pairs, "", m); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+pairs[k])
	}
	return strings.Join(parts, " "), nil
}

func flattenInto(pairs map[string]string, prefix string, m map[string]any) error {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			if err := flattenInto(pairs, key, t); err != nil {
				return err
			}
		case string:
			pairs[key] = t
		case nil:
			pairs[key] = "null"
		default:
			buf, err := json.Marshal(t)
			if err != nil {
				return err
			}
			pairs[key] = string(buf)
		}
	}
	return nil
}

func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookupPath(m, f); ok {
			out[f] = v
		}
	}
	return out
}

// lookupPath resolves a dot-separated selector through nested objects, so
// quote payloads can be trimmed to leaves like output_amount.amount_decimal.
func lookupPath(m map[string]any, path string) (any, bool) {
	var current any = m
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// normalizeValue reduces typed structs to their JSON shape so projection
// and flattening see the same field names agents do.
func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}
