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

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExitCode enumerates the bot-manager callback's recognized exit reasons.
type ExitCode int

const (
	ExitNormal          ExitCode = 0
	ExitSignalInterrupt ExitCode = 130
	ExitSignalTerminate ExitCode = 143
	ExitAdmissionFailed ExitCode = 2
)

// managerCallback is the {connection_id, exit_code, reason, error_details?}
// payload POSTed to the manager when the bot terminates.
type managerCallback struct {
	ConnectionID string `json:"connection_id"`
	ExitCode     int    `json:"exit_code"`
	Reason       string `json:"reason"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// reasonFor maps a known exit code to its human-readable reason string.
func reasonFor(code ExitCode) string {
	switch code {
	case ExitNormal:
		return "normal completion"
	case ExitSignalInterrupt:
		return "signal-driven shutdown (SIGINT)"
	case ExitSignalTerminate:
		return "signal-driven shutdown (SIGTERM)"
	case ExitAdmissionFailed:
		return "admission failure"
	default:
		return "fatal error"
	}
}

// NotifyManager POSTs the termination callback to callbackURL. errDetails
// may be empty.
func NotifyManager(ctx context.Context, callbackURL, connectionID string, code ExitCode, errDetails string) error {
	if callbackURL == "" {
		return nil
	}

	body, err := json.Marshal(managerCallback{
		ConnectionID: connectionID,
		ExitCode:     int(code),
		Reason:       reasonFor(code),
		ErrorDetails: errDetails,
	})
	if err != nil {
		return fmt.Errorf("marshal manager callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build manager callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("manager callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("manager callback rejected with status %d", resp.StatusCode)
	}
	return nil
}
