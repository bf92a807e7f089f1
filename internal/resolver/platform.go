// Copyright 2025 SPL Assistant Project
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

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Platform labels returned by platform-context detection.
const (
	PlatformWindows = "windows"
	PlatformLinux   = "linux"
	PlatformMixed   = "mixed"
	PlatformUnknown = "unknown"
)

// platformContext is the detected technology platform for a request. It is
// used to refine the confidence of an explicit tenant match.
type platformContext struct {
	Platform   string
	Confidence float64
	Reasoning  string
	Indicators []string
}

// platformResult is the strict JSON shape expected from the model.
type platformResult struct {
	PrimaryPlatform      string   `json:"primary_platform"`
	Confidence           float64  `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
	TechnologyIndicators []string `json:"technology_indicators"`
}

var (
	windowsSignals = []string{"defender", "powershell", "registry", "eventcode", `c:\`}
	linuxSignals   = []string{"sudo", "/etc/", "/var/", "systemctl", "bash"}
)

// detectPlatform classifies the text's technology platform via the model,
// falling back to a fixed keyword heuristic when the call fails.
func (r *Resolver) detectPlatform(ctx context.Context, text string) platformContext {
	prompt := fmt.Sprintf(`Analyze this query to determine the target platform/technology:

Query: "%s"

Consider these factors:
- Specific tools/applications mentioned (Windows Defender, PowerShell, sudo, systemctl, etc.)
- File paths and system directories (C:\, /etc/, /var/, etc.)
- Log sources and event types (EventCode, syslog, WinEventLog, etc.)
- Administrative commands and processes
- Operating system context clues

Return JSON only:
{
    "primary_platform": "windows|linux|mixed|unknown",
    "confidence": 0.0-1.0,
    "reasoning": "brief explanation",
    "technology_indicators": ["list", "of", "key", "indicators"]
}`, text)

	resp, err := r.model.Complete(ctx, userMessage(prompt), 0.1)
	if err == nil {
		var result platformResult
		if jsonErr := json.Unmarshal([]byte(extractJSONObject(resp)), &result); jsonErr == nil && result.PrimaryPlatform != "" {
			return platformContext{
				Platform:   result.PrimaryPlatform,
				Confidence: result.Confidence,
				Reasoning:  result.Reasoning,
				Indicators: result.TechnologyIndicators,
			}
		}
		err = fmt.Errorf("unparseable platform response")
	}

	r.logger.Debug("LLM platform detection unavailable, using keyword heuristic", zap.Error(err))
	return keywordPlatform(text)
}

// keywordPlatform is the fixed fallback heuristic: count windows and linux
// signal hits and pick the larger side.
func keywordPlatform(text string) platformContext {
	q := strings.ToLower(text)

	winScore := 0
	for _, s := range windowsSignals {
		if strings.Contains(q, s) {
			winScore++
		}
	}
	linuxScore := 0
	for _, s := range linuxSignals {
		if strings.Contains(q, s) {
			linuxScore++
		}
	}

	switch {
	case winScore > linuxScore:
		return platformContext{Platform: PlatformWindows, Confidence: 0.7, Reasoning: "Basic keyword fallback"}
	case linuxScore > winScore:
		return platformContext{Platform: PlatformLinux, Confidence: 0.7, Reasoning: "Basic keyword fallback"}
	default:
		return platformContext{Platform: PlatformUnknown, Confidence: 0.3, Reasoning: "No clear platform indicators"}
	}
}
