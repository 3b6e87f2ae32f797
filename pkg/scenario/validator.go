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

package scenario

import "fmt"

// ValidationError locates one well-formedness failure in a definition.
type ValidationError struct {
	PropertyPath string
	Message      string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.PropertyPath, e.Message)
}

// Validate checks a definition for well-formedness and returns every failure
// found. An empty slice means the definition is valid.
func Validate(def *Definition) []ValidationError {
	var errs []ValidationError

	if def == nil {
		return []ValidationError{{PropertyPath: "", Message: "definition is nil"}}
	}

	if def.Name == "" {
		errs = append(errs, ValidationError{"name", "name cannot be empty"})
	}
	if len(def.ValidModels) == 0 {
		errs = append(errs, ValidationError{"validModels", "at least one valid model is required"})
	}
	if len(def.Stages) == 0 {
		errs = append(errs, ValidationError{"stages", "at least one stage is required"})
	}

	seenIDs := make(map[int]bool, len(def.Stages))
	for i, stage := range def.Stages {
		path := fmt.Sprintf("stages[%d]", i)

		if seenIDs[stage.ID] {
			errs = append(errs, ValidationError{path + ".id",
				fmt.Sprintf("stage id %d is not unique", stage.ID)})
		}
		seenIDs[stage.ID] = true

		if len(stage.UserPrompts) == 0 {
			errs = append(errs, ValidationError{path + ".userPrompts",
				"at least one user prompt is required"})
		}

		errs = append(errs, validateKnobs(path, stage.Temperature, stage.TopP, stage.MaxTokens)...)

		for j, prompt := range stage.UserPrompts {
			promptPath := fmt.Sprintf("%s.userPrompts[%d]", path, j)

			if prompt.Template == "" {
				errs = append(errs, ValidationError{promptPath + ".template",
					"template cannot be empty"})
			}

			errs = append(errs, validateKnobs(promptPath, prompt.Temperature, prompt.TopP, prompt.MaxTokens)...)

			if rf := prompt.ResponseFormatConfig; rf != nil && rf.Type == ResponseFormatJSONSchema {
				hasSchema := rf.Schema != ""
				hasTypeName := rf.ResponseTypeName != ""
				if hasSchema == hasTypeName {
					errs = append(errs, ValidationError{promptPath + ".responseFormatConfig",
						"JsonSchema requires exactly one of schema or responseTypeName"})
				}
			}
		}
	}

	return errs
}

func validateKnobs(path string, temperature, topP *float64, maxTokens *int) []ValidationError {
	var errs []ValidationError

	if temperature != nil && (*temperature < 0 || *temperature > 1) {
		errs = append(errs, ValidationError{path + ".temperature",
			fmt.Sprintf("temperature %v must be between 0 and 1", *temperature)})
	}
	if topP != nil && (*topP < 0 || *topP > 1) {
		errs = append(errs, ValidationError{path + ".topP",
			fmt.Sprintf("topP %v must be between 0 and 1", *topP)})
	}
	if maxTokens != nil && *maxTokens <= 0 {
		errs = append(errs, ValidationError{path + ".maxTokens",
			fmt.Sprintf("maxTokens %d must be positive", *maxTokens)})
	}

	return errs
}
