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

import "fmt"

// The key builder is the only place context keys are composed; every entry
// the pipeline writes or reads goes through these functions.

// StageKey composes the per-prompt stage key: "{stageId}-{turnIndex+1}".
func StageKey(stageID, turnIndex int) string {
	return fmt.Sprintf("%d-%d", stageID, turnIndex+1)
}

// InputKey addresses a stage input, e.g. the resolved user prompt.
func InputKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:input:%s", stageKey, name)
}

// InputParamKey addresses one input parameter of a stage.
func InputParamKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:input:params:%s", stageKey, name)
}

// MetadataKey addresses execution metadata such as the responding model.
func MetadataKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:metadata:%s", stageKey, name)
}

// ToolKey addresses one tool-call audit record.
func ToolKey(stageKey, toolName, callID string) string {
	return fmt.Sprintf("stage:%s:tool:%s:%s", stageKey, toolName, callID)
}

// OutputKey addresses the stage output record.
func OutputKey(stageKey string) string {
	return fmt.Sprintf("stage:%s:output", stageKey)
}

// OutputParamKey addresses one output parameter, e.g. the execution id.
func OutputParamKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:output:params:%s", stageKey, name)
}

// OutputLogKey addresses an output log entry of the given type.
func OutputLogKey(stageKey, logType string) string {
	return fmt.Sprintf("stage:%s:output:%s", stageKey, logType)
}
