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

// Package pipeline holds the record types that flow across the broker
// streams (Segment, Command, Reply, Audio) and the canonical wire codec
// that encodes and decodes them.
package pipeline

import "time"

// Stream names, fixed by the system's external contract.
const (
	StreamTranscripts = "transcripts"
	StreamCommands    = "hey_raven_commands"
	StreamReplies     = "llm_responses"
	StreamAudio       = "tts_audio_queue"
)

// DLQSuffix is appended to a stream name to name its dead-letter stream.
const DLQSuffix = ".dlq"

// DLQStream returns the dead-letter stream name for a given source stream.
func DLQStream(stream string) string {
	return stream + DLQSuffix
}

// RecordType discriminates the canonical wire envelope.
type RecordType string

const (
	RecordTypeSegment RecordType = "segment"
	RecordTypeCommand RecordType = "command"
	RecordTypeReply   RecordType = "reply"
	RecordTypeAudio   RecordType = "audio"
)

// Segment is produced by the external recognizer onto the transcripts stream.
type Segment struct {
	Text          string    `json:"text"`
	SessionUID    string    `json:"session_uid"`
	MeetingID     string    `json:"meeting_id"`
	SegmentStartS float64   `json:"segment_start_s"`
	SegmentEndS   float64   `json:"segment_end_s"`
	Timestamp     time.Time `json:"timestamp"`
}

// PatternKind enumerates the wake-phrase categories from the WakeDetector
// configuration.
type PatternKind string

const (
	PatternPrimary       PatternKind = "primary"
	PatternSecondary     PatternKind = "secondary"
	PatternConversational PatternKind = "conversational"
	PatternQuestion      PatternKind = "question"
	PatternPunctuation   PatternKind = "punctuation"
	PatternFuzzy         PatternKind = "fuzzy"
)

// Command is produced by the WakeDetector onto hey_raven_commands.
type Command struct {
	Question    string      `json:"question"`
	SessionUID  string      `json:"session_uid"`
	MeetingID   string      `json:"meeting_id"`
	Context     string      `json:"context"`
	Confidence  float64     `json:"confidence"`
	PatternKind PatternKind `json:"pattern_kind"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Reply is produced by the Responder onto llm_responses.
type Reply struct {
	Response          string    `json:"response"`
	SessionUID        string    `json:"session_uid"`
	MeetingID         string    `json:"meeting_id"`
	OriginalQuestion  string    `json:"original_question"`
	OriginalTimestamp time.Time `json:"original_timestamp"`
	Timestamp         time.Time `json:"timestamp"`
	MessageID         string    `json:"message_id"`
}

// AudioMetadata describes the synthesized blob carried by an Audio record.
type AudioMetadata struct {
	Format     string  `json:"format"`
	SizeBytes  int     `json:"size_bytes"`
	DurationS  float64 `json:"duration_s"`
	Engine     string  `json:"engine"`
}

// Audio is produced by the Synthesizer onto tts_audio_queue.
type Audio struct {
	AudioData        string        `json:"audio_data"` // base64
	AudioMetadata    AudioMetadata `json:"audio_metadata"`
	SessionUID       string        `json:"session_uid"`
	MeetingID        string        `json:"meeting_id"`
	OriginalQuestion string        `json:"original_question"`
	ResponseText     string        `json:"response_text"`
	MessageID        string        `json:"message_id"`
	Timestamp        time.Time     `json:"timestamp"`
}

// Valid reports whether the Audio record satisfies spec.md §3: both
// audio_data and message_id must be non-empty for the Player to accept it.
func (a Audio) Valid() bool {
	return a.AudioData != "" && a.MessageID != ""
}

// SessionBinding is the bot's in-process record correlating its manager-
// assigned connection id with the recognizer session uid learned at
// runtime and the meeting it is attached to.
type SessionBinding struct {
	ConnectionID         string
	RecognizerSessionUID string
	MeetingID            string
}
