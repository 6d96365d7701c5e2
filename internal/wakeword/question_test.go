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

package wakeword

import (
	"strings"
	"testing"
)

func TestExtractQuestion(t *testing.T) {
	utterance := "hey raven, what time is the standup"
	m := Match{RemainderStart: len("hey raven")}

	question, ok := ExtractQuestion(utterance, m, 3, 200)
	if !ok {
		t.Fatal("ExtractQuestion() ok = false, want true")
	}
	if question != "what time is the standup" {
		t.Errorf("question = %q, want %q", question, "what time is the standup")
	}
}

func TestExtractQuestion_TooShort(t *testing.T) {
	utterance := "hey raven huh"
	m := Match{RemainderStart: len("hey raven")}

	_, ok := ExtractQuestion(utterance, m, 10, 200)
	if ok {
		t.Error("ExtractQuestion() ok = true, want false for remainder below minLen")
	}
}

func TestExtractQuestion_RejectsAboveMaxLen(t *testing.T) {
	utterance := "hey raven " + strings.Repeat("x", 50)
	m := Match{RemainderStart: len("hey raven")}

	question, ok := ExtractQuestion(utterance, m, 1, 10)
	if ok {
		t.Fatal("ExtractQuestion() ok = true, want false for remainder above maxLen")
	}
	if question != "" {
		t.Errorf("question = %q, want empty", question)
	}
}

func TestExtractQuestion_EmptyRemainder(t *testing.T) {
	utterance := "hey raven"
	m := Match{RemainderStart: len("hey raven")}

	_, ok := ExtractQuestion(utterance, m, 0, 200)
	if ok {
		t.Error("ExtractQuestion() ok = true, want false for empty remainder")
	}
}

func TestExtractQuestion_RemainderStartBeyondUtterance(t *testing.T) {
	_, ok := ExtractQuestion("hi", Match{RemainderStart: 10}, 0, 200)
	if ok {
		t.Error("ExtractQuestion() ok = true, want false when RemainderStart exceeds length")
	}
}
