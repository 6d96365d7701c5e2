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
	"github.com/tiktoken-go/tokenizer"

	"github.com/heyraven/raven-pipeline/internal/llmgateway"
)

// codecFor resolves a tiktoken codec for model, falling back to cl100k_base
// for models tiktoken doesn't recognize by name (local/self-hosted models
// speaking the OpenAI wire format still tokenize close enough to budget by).
func codecFor(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return codec, nil
	}
	return tokenizer.Get(tokenizer.Cl100kBase)
}

func countTokens(codec tokenizer.Codec, text string) int {
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// trimToBudget drops the oldest turns until the message set's token count
// fits under maxTokens, always keeping the system persona and the final
// user question.
func trimToBudget(model string, messages []llmgateway.Message, maxTokens int) []llmgateway.Message {
	if maxTokens <= 0 {
		return messages
	}

	codec, err := codecFor(model)
	if err != nil {
		return messages
	}

	total := func(msgs []llmgateway.Message) int {
		sum := 0
		for _, m := range msgs {
			sum += countTokens(codec, m.Content)
		}
		return sum
	}

	for total(messages) > maxTokens && len(messages) > 2 {
		// messages[0] is the persona (if present) and the last entry is the
		// current question; drop the oldest history turn, which sits right
		// after the persona.
		cut := 0
		if messages[0].Role == "system" {
			cut = 1
		}
		if cut >= len(messages)-1 {
			break
		}
		messages = append(messages[:cut], messages[cut+1:]...)
	}

	return messages
}
