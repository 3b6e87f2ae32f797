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

package contextstore

import "testing"

func TestKeyBuilders(t *testing.T) {
	stageKey := StageKey(3, 0)
	if stageKey != "3-1" {
		t.Fatalf("StageKey(3, 0) = %q, want %q", stageKey, "3-1")
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"input", InputKey(stageKey, "user_prompt"), "stage:3-1:input:user_prompt"},
		{"input param", InputParamKey(stageKey, "depth"), "stage:3-1:input:params:depth"},
		{"metadata", MetadataKey(stageKey, "output_model"), "stage:3-1:metadata:output_model"},
		{"tool", ToolKey(stageKey, "lookup", "call_1"), "stage:3-1:tool:lookup:call_1"},
		{"output", OutputKey(stageKey), "stage:3-1:output"},
		{"output param", OutputParamKey(stageKey, "execution_id"), "stage:3-1:output:params:execution_id"},
		{"output log", OutputLogKey(stageKey, "trace"), "stage:3-1:output:trace"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s key = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
