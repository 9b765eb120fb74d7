package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in harness.yaml using Go template
// syntax, {{.VAR_NAME}}. The $ character stays untouched so agent definitions
// can carry shell fragments and prompt strings literally:
//   - {{.HARNESS_TOKEN}} → value of HARNESS_TOKEN
//   - env: {PROMPT: "${PWD}> "} → preserved as written
//
// Missing variables expand to the empty string; validation catches required
// fields left empty. Content that fails to parse or execute as a template is
// returned unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split on the first = only; values may contain = themselves.
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
