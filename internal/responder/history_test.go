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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHistory_AppendAndGet(t *testing.T) {
	h := NewMemoryHistory(10)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "session-1", Turn{Question: "hi", Answer: "hello"}))

	turns, err := h.Get(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hi", turns[0].Question)
	assert.Equal(t, "hello", turns[0].Answer)
}

func TestMemoryHistory_TrimsToMaxSize(t *testing.T) {
	h := NewMemoryHistory(2)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "session-1", Turn{Question: "q1", Answer: "a1"}))
	require.NoError(t, h.Append(ctx, "session-1", Turn{Question: "q2", Answer: "a2"}))
	require.NoError(t, h.Append(ctx, "session-1", Turn{Question: "q3", Answer: "a3"}))

	turns, err := h.Get(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q2", turns[0].Question)
	assert.Equal(t, "q3", turns[1].Question)
}

func TestMemoryHistory_IndependentPerSession(t *testing.T) {
	h := NewMemoryHistory(10)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "session-1", Turn{Question: "q1", Answer: "a1"}))
	turns, err := h.Get(ctx, "session-2")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestToMessages(t *testing.T) {
	turns := []Turn{{Question: "q1", Answer: "a1"}}
	messages := ToMessages("be nice", turns, "q2")

	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "be nice", messages[0].Content)
	assert.Equal(t, "q2", messages[len(messages)-1].Content)
}

func TestToMessages_NoPersona(t *testing.T) {
	messages := ToMessages("", nil, "q1")
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
}
