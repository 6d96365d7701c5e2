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

import "strings"

// ExtractQuestion trims the remainder of an utterance after a wake-phrase
// match and applies the configured length bounds. ok is false when the
// remainder is too short or too long to forward to the Responder.
func ExtractQuestion(utterance string, m Match, minLen, maxLen int) (question string, ok bool) {
	if m.RemainderStart > len(utterance) {
		return "", false
	}

	question = strings.TrimSpace(utterance[m.RemainderStart:])
	question = strings.TrimLeft(question, ",.?!:; ")
	question = strings.TrimSpace(question)

	if minLen > 0 && len(question) < minLen {
		return "", false
	}
	if maxLen > 0 && len(question) > maxLen {
		return "", false
	}

	return question, question != ""
}
