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

package pipeline

import (
	"encoding/json"
	"fmt"
)

// Fields is the flat string-keyed map a broker record is made of.
type Fields map[string]string

// payloadField is the legacy inbound shape: a single compound payload field
// carrying a JSON-encoded object. Outbound records never use this shape;
// it is accepted on read only, per spec.md §6.
const payloadField = "payload"

// EncodeSegment builds the canonical flat wire record for a Segment.
func EncodeSegment(s Segment) Fields {
	return Fields{
		"type":            string(RecordTypeSegment),
		"text":            s.Text,
		"session_uid":     s.SessionUID,
		"meeting_id":      s.MeetingID,
		"segment_start_s": formatFloat(s.SegmentStartS),
		"segment_end_s":   formatFloat(s.SegmentEndS),
		"timestamp":       s.Timestamp.Format(timeLayout),
	}
}

// DecodeSegment accepts either the flat shape or a payload-wrapped one.
func DecodeSegment(f Fields) (Segment, error) {
	f, err := unwrap(f)
	if err != nil {
		return Segment{}, err
	}
	ts, err := parseTime(f["timestamp"])
	if err != nil {
		return Segment{}, err
	}
	return Segment{
		Text:          f["text"],
		SessionUID:    f["session_uid"],
		MeetingID:     f["meeting_id"],
		SegmentStartS: parseFloat(f["segment_start_s"]),
		SegmentEndS:   parseFloat(f["segment_end_s"]),
		Timestamp:     ts,
	}, nil
}

// EncodeCommand builds the canonical flat wire record for a Command.
func EncodeCommand(c Command) Fields {
	return Fields{
		"type":         string(RecordTypeCommand),
		"question":     c.Question,
		"session_uid":  c.SessionUID,
		"meeting_id":   c.MeetingID,
		"context":      c.Context,
		"confidence":   formatFloat(c.Confidence),
		"pattern_kind": string(c.PatternKind),
		"timestamp":    c.Timestamp.Format(timeLayout),
	}
}

// DecodeCommand accepts either the flat shape or a payload-wrapped one.
func DecodeCommand(f Fields) (Command, error) {
	f, err := unwrap(f)
	if err != nil {
		return Command{}, err
	}
	ts, err := parseTime(f["timestamp"])
	if err != nil {
		return Command{}, err
	}
	return Command{
		Question:    f["question"],
		SessionUID:  f["session_uid"],
		MeetingID:   f["meeting_id"],
		Context:     f["context"],
		Confidence:  parseFloat(f["confidence"]),
		PatternKind: PatternKind(f["pattern_kind"]),
		Timestamp:   ts,
	}, nil
}

// EncodeReply builds the canonical flat wire record for a Reply. meeting_id
// is always serialized as a string regardless of its source type, per
// spec.md §4.2.
func EncodeReply(r Reply) Fields {
	return Fields{
		"type":               string(RecordTypeReply),
		"response":           r.Response,
		"session_uid":        r.SessionUID,
		"meeting_id":         r.MeetingID,
		"original_question":  r.OriginalQuestion,
		"original_timestamp": r.OriginalTimestamp.Format(timeLayout),
		"timestamp":          r.Timestamp.Format(timeLayout),
		"message_id":         r.MessageID,
	}
}

// DecodeReply accepts either the flat shape or a payload-wrapped one.
func DecodeReply(f Fields) (Reply, error) {
	f, err := unwrap(f)
	if err != nil {
		return Reply{}, err
	}
	ts, err := parseTime(f["timestamp"])
	if err != nil {
		return Reply{}, err
	}
	ots, err := parseTime(f["original_timestamp"])
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Response:          f["response"],
		SessionUID:        f["session_uid"],
		MeetingID:         f["meeting_id"],
		OriginalQuestion:  f["original_question"],
		OriginalTimestamp: ots,
		Timestamp:         ts,
		MessageID:         f["message_id"],
	}, nil
}

// EncodeAudio builds the canonical flat wire record for an Audio.
func EncodeAudio(a Audio) Fields {
	meta, _ := json.Marshal(a.AudioMetadata)
	return Fields{
		"type":              string(RecordTypeAudio),
		"audio_data":        a.AudioData,
		"audio_metadata":    string(meta),
		"session_uid":       a.SessionUID,
		"meeting_id":        a.MeetingID,
		"original_question": a.OriginalQuestion,
		"response_text":     a.ResponseText,
		"message_id":        a.MessageID,
		"timestamp":         a.Timestamp.Format(timeLayout),
	}
}

// DecodeAudio accepts either the flat shape or a payload-wrapped one.
func DecodeAudio(f Fields) (Audio, error) {
	f, err := unwrap(f)
	if err != nil {
		return Audio{}, err
	}
	ts, err := parseTime(f["timestamp"])
	if err != nil {
		return Audio{}, err
	}
	var meta AudioMetadata
	if raw := f["audio_metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return Audio{}, fmt.Errorf("decode audio_metadata: %w", err)
		}
	}
	return Audio{
		AudioData:        f["audio_data"],
		AudioMetadata:     meta,
		SessionUID:        f["session_uid"],
		MeetingID:         f["meeting_id"],
		OriginalQuestion:  f["original_question"],
		ResponseText:      f["response_text"],
		MessageID:         f["message_id"],
		Timestamp:         ts,
	}, nil
}

// unwrap accepts the legacy payload-wrapped shape and flattens it into the
// fields map a Decode* function expects. Shapes that are already flat pass
// through untouched.
func unwrap(f Fields) (Fields, error) {
	raw, ok := f[payloadField]
	if !ok {
		return f, nil
	}
	var nested map[string]string
	if err := json.Unmarshal([]byte(raw), &nested); err != nil {
		return nil, fmt.Errorf("decode payload field: %w", err)
	}
	return Fields(nested), nil
}
