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

// Command ravenctl is the operator CLI: it inspects broker stream/group
// state, lists and replays dead-lettered records, and pings a stage's
// health endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ravenctl",
		Short: "Operate a running Hey Raven pipeline",
	}

	cmd.PersistentFlags().String("broker-url", envOr("RAVEN_BROKER_URL", "nats://localhost:4222"), "broker connection URL")
	cmd.PersistentFlags().String("db-path", envOr("RAVEN_DB_PATH", ""), "path to the dead-letter sqlite mirror")

	cmd.AddCommand(
		newStreamCommand(),
		newPendingCommand(),
		newDLQCommand(),
		newHealthCommand(),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
