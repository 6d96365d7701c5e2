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

// defaultPersona is used when ResponderConfig.Persona is left blank.
const defaultPersona = "You are Raven, a concise voice assistant listening in on a live meeting. " +
	"Answer the question you were just asked in one or two sentences suitable for text-to-speech."

// resolvePersona returns configured, or the default if blank.
func resolvePersona(configured string) string {
	if configured == "" {
		return defaultPersona
	}
	return configured
}
