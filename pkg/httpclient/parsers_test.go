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

package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOpenAIRateLimitHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "30")
	headers.Set("x-ratelimit-reset-tokens", "1700000000")
	headers.Set("x-ratelimit-remaining-requests", "42")
	headers.Set("x-ratelimit-remaining-tokens", "9000")

	info := ParseOpenAIRateLimitHeaders(headers)

	assert.Equal(t, 30*time.Second, info.RetryAfter)
	assert.Equal(t, int64(1700000000), info.ResetTime)
	assert.Equal(t, 42, info.RequestsRemaining)
	assert.Equal(t, 9000, info.TokensRemaining)
}

func TestParseOpenAIRateLimitHeadersEmpty(t *testing.T) {
	info := ParseOpenAIRateLimitHeaders(http.Header{})
	assert.Zero(t, info.RetryAfter)
	assert.Zero(t, info.ResetTime)
}

func TestParseOpenAIRateLimitHeadersIgnoresGarbage(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "soon")
	headers.Set("x-ratelimit-reset-tokens", "whenever")

	info := ParseOpenAIRateLimitHeaders(headers)
	assert.Zero(t, info.RetryAfter)
	assert.Zero(t, info.ResetTime)
}
