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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyManager_PostsExpectedPayload(t *testing.T) {
	var received managerCallback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NotifyManager(context.Background(), srv.URL, "conn-1", ExitSignalInterrupt, "")
	if err != nil {
		t.Fatalf("NotifyManager() error = %v", err)
	}
	if received.ConnectionID != "conn-1" || received.ExitCode != 130 {
		t.Errorf("received = %+v, want connection_id=conn-1 exit_code=130", received)
	}
}

func TestNotifyManager_EmptyURLIsNoOp(t *testing.T) {
	if err := NotifyManager(context.Background(), "", "conn-1", ExitNormal, ""); err != nil {
		t.Errorf("NotifyManager() error = %v, want nil for empty URL", err)
	}
}

func TestNotifyManager_NonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NotifyManager(context.Background(), srv.URL, "conn-1", ExitNormal, ""); err == nil {
		t.Error("NotifyManager() error = nil, want error on non-2xx")
	}
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		code ExitCode
		want string
	}{
		{ExitNormal, "normal completion"},
		{ExitSignalInterrupt, "signal-driven shutdown (SIGINT)"},
		{ExitSignalTerminate, "signal-driven shutdown (SIGTERM)"},
		{ExitAdmissionFailed, "admission failure"},
		{ExitCode(7), "fatal error"},
	}
	for _, tt := range tests {
		if got := reasonFor(tt.code); got != tt.want {
			t.Errorf("reasonFor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
