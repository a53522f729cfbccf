// Package template renders Go templates embedded in node content.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// EnvPrefix marks the environment variables templates may read. A variable
// ACTFLOW_VAR_API_HOST is rendered by {{ .env.API_HOST }}; nothing else in
// the process environment is visible to a workspace.
const EnvPrefix = "ACTFLOW_VAR_"

// RenderWithInput renders templateStr with a generation's resolved input
// under .input and the EnvPrefix variables under .env.
func RenderWithInput(templateStr string, input map[string]any) (any, error) {
	data := map[string]any{
		"input": input,
		"env":   templateEnv(),
	}

	return Render(templateStr, data)
}

// IsTemplate reports whether s contains template actions.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// Render executes templateStr and decodes the result: JSON objects and
// arrays, numbers and booleans come back typed, anything else as a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("node").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)

				return string(b), err
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func templateEnv() map[string]string {
	envMap := make(map[string]string)

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		name, ok = strings.CutPrefix(name, EnvPrefix)
		if ok && name != "" {
			envMap[name] = value
		}
	}

	return envMap
}
