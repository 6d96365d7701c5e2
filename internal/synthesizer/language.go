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

package synthesizer

import (
	"errors"
	"unicode"
)

var errEmptyAudio = errors.New("synthesized audio is empty")

// detectLanguage returns a best-effort BCP-47-ish language hint for the TTS
// engine. It only distinguishes the handful of scripts the engine's voice
// catalog actually covers; anything else falls back to defaultLang.
func detectLanguage(text, defaultLang string) string {
	var hasHan, hasHiragana, hasHangul, hasCyrillic, hasLatin bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			hasHan = true
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			hasHiragana = true
		case unicode.Is(unicode.Hangul, r):
			hasHangul = true
		case unicode.Is(unicode.Cyrillic, r):
			hasCyrillic = true
		case unicode.Is(unicode.Latin, r):
			hasLatin = true
		}
	}

	switch {
	case hasHiragana:
		return "ja"
	case hasHangul:
		return "ko"
	case hasHan:
		return "zh"
	case hasCyrillic:
		return "ru"
	case hasLatin, defaultLang == "":
		return defaultLangOr(defaultLang, "en")
	default:
		return defaultLangOr(defaultLang, "en")
	}
}

func defaultLangOr(defaultLang, fallback string) string {
	if defaultLang != "" {
		return defaultLang
	}
	return fallback
}
