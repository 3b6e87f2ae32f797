// Copyright 2026 Stageflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package placeholder rewrites prompt templates against session state.
//
// Two marker syntaxes are resolved in a single scan:
//
//	{{key}}  context lookup, with JSON-path navigation into :output records
//	{name}   stage parameter lookup, with one level of {{...}} indirection
//
// A marker that cannot be resolved is left in place for the validation
// middleware to report.
package placeholder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/stageflow-ai/stageflow/pkg/contextstore"
)

// SessionIDKey is the built-in context key resolving to the session id.
const SessionIDKey = "sessionId"

const outputSegment = ":output"

// markerPattern matches both syntaxes in one alternation; the double-brace
// form wins where they overlap, so "{{{a}}}" resolves the inner {{a}} and
// keeps the stray outer braces. A single-brace marker is a parameter
// reference and only ever names an identifier; brace text like "{x:1}" is
// literal content, not a marker.
var markerPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}|\{([A-Za-z_][A-Za-z0-9_-]*)\}`)

// ContainsMarker reports whether any unresolved marker remains in s.
func ContainsMarker(s string) bool {
	return markerPattern.MatchString(s)
}

// Resolver substitutes template markers from a context item store.
type Resolver struct {
	items contextstore.ItemStore
}

func NewResolver(items contextstore.ItemStore) *Resolver {
	return &Resolver{items: items}
}

// errUnresolved signals a marker whose key is absent; the marker stays as-is.
var errUnresolved = errors.New("unresolved")

// Resolve rewrites every marker in template. Storage failures abort; absent
// keys leave their marker untouched.
func (r *Resolver) Resolve(ctx context.Context, sessionID, template string, params map[string]any) (string, error) {
	matches := markerPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(template[last:m[0]])
		last = m[1]

		var resolved string
		var err error
		switch {
		case m[2] >= 0:
			resolved, err = r.resolveContextKey(ctx, sessionID, template[m[2]:m[3]])
		case m[4] >= 0:
			resolved, err = r.resolveParameter(ctx, sessionID, template[m[4]:m[5]], params)
		}

		if errors.Is(err, errUnresolved) {
			b.WriteString(template[m[0]:m[1]])
			continue
		}
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
	}
	b.WriteString(template[last:])

	return b.String(), nil
}

// resolveContextKey dereferences a {{key}} marker against session state.
func (r *Resolver) resolveContextKey(ctx context.Context, sessionID, key string) (string, error) {
	if strings.EqualFold(key, SessionIDKey) {
		return sessionID, nil
	}

	if idx := strings.Index(key, outputSegment); idx >= 0 {
		return r.resolveOutputPath(ctx, sessionID, key, idx+len(outputSegment))
	}

	value, ok, err := r.items.LoadItem(ctx, sessionID, key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve {{%s}}: %w", key, err)
	}
	if !ok {
		return "", errUnresolved
	}
	return value, nil
}

// resolveOutputPath splits an output reference into record key and JSON path
// at the first ':' after ':output' and navigates the loaded record. An absent
// record resolves to the empty string; a record the path cannot navigate
// resolves to the raw record; a missing node resolves to "{}".
func (r *Resolver) resolveOutputPath(ctx context.Context, sessionID, key string, pathStart int) (string, error) {
	recordKey := key
	path := ""
	if pathStart < len(key) && key[pathStart] == ':' {
		recordKey = key[:pathStart]
		path = key[pathStart+1:]
	}

	// Templates reference outputs by bare stage key; the store keeps them
	// under the composed "stage:" namespace.
	if !strings.HasPrefix(recordKey, "stage:") {
		recordKey = "stage:" + recordKey
	}

	record, ok, err := r.items.LoadItem(ctx, sessionID, recordKey)
	if err != nil {
		return "", fmt.Errorf("failed to resolve {{%s}}: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	if path == "" {
		return record, nil
	}

	return navigate(record, path), nil
}

// navigate walks a JSON path through record. Path segments are separated by
// ':' or '.'; numeric segments index arrays.
func navigate(record, path string) string {
	if !json.Valid([]byte(record)) {
		return record
	}

	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == ':' || r == '.'
	})
	if len(segments) == 0 {
		return record
	}
	for i, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			segments[i] = "[" + seg + "]"
		}
	}

	value, dataType, _, err := jsonparser.Get([]byte(record), segments...)
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return "{}"
		}
		return record
	}

	if dataType == jsonparser.String {
		if s, perr := jsonparser.ParseString(value); perr == nil {
			return s
		}
	}
	return string(value)
}

// resolveParameter dereferences a {name} marker against the stage parameter
// bag. A value of the form {{innerKey}} gets one round of context indirection.
func (r *Resolver) resolveParameter(ctx context.Context, sessionID, name string, params map[string]any) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", errUnresolved
	}

	value := stringify(raw)
	if strings.HasPrefix(value, "{{") && strings.HasSuffix(value, "}}") {
		inner := strings.TrimSuffix(strings.TrimPrefix(value, "{{"), "}}")
		if inner != "" && !strings.ContainsAny(inner, "{}") {
			return r.resolveContextKey(ctx, sessionID, inner)
		}
	}
	return value, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
