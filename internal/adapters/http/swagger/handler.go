// Package swagger serves the OpenAPI description of the ops API.
package swagger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	jsonOnce sync.Once
	jsonDoc  []byte
	jsonErr  error
)

// Register attaches the OpenAPI document routes to mux.
// Routes:
//
//	GET /openapi.yaml -> Embedded OpenAPI document
//	GET /openapi.json -> The same document converted to JSON
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})

	mux.HandleFunc("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		doc, err := JSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})
}

// JSON returns the embedded OpenAPI document as JSON. The conversion runs once.
func JSON() ([]byte, error) {
	jsonOnce.Do(func() {
		jsonDoc, jsonErr = yamlToJSON(OpenAPI)
	})
	return jsonDoc, jsonErr
}

func yamlToJSON(src []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi yaml: %w", err)
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites YAML mappings with non-string keys, such as status
// codes, into maps JSON can encode.
func stringKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = stringKeys(t[i])
		}
		return t
	default:
		return v
	}
}
