/*
 * This file is part of Hey Raven.
 * Copyright (C) 2025 Hey Raven Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package responder

import (
	"testing"

	"github.com/heyraven/raven-pipeline/internal/llmgateway"
)

func TestTrimToBudget_NoTrimNeeded(t *testing.T) {
	messages := []llmgateway.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "q1"},
	}
	got := trimToBudget("gpt-4", messages, 1000)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestTrimToBudget_DropsOldestTurns(t *testing.T) {
	messages := []llmgateway.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "a long question about the quarterly roadmap and budget planning"},
		{Role: "assistant", Content: "a long answer about the quarterly roadmap and budget planning"},
		{Role: "user", Content: "current question"},
	}
	got := trimToBudget("gpt-4", messages, 5)

	if len(got) >= len(messages) {
		t.Errorf("len(got) = %d, want fewer than %d", len(got), len(messages))
	}
	if got[0].Role != "system" {
		t.Errorf("got[0].Role = %q, want %q (persona must survive trimming)", got[0].Role, "system")
	}
	if got[len(got)-1].Content != "current question" {
		t.Errorf("last message = %q, want %q (current question must survive trimming)", got[len(got)-1].Content, "current question")
	}
}

func TestTrimToBudget_DisabledWhenMaxTokensNonPositive(t *testing.T) {
	messages := []llmgateway.Message{{Role: "user", Content: "hi"}}
	got := trimToBudget("gpt-4", messages, 0)
	if len(got) != 1 {
		t.Errorf("len(got) = %d, want 1 when trimming disabled", len(got))
	}
}
