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

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/storage"
)

// replayDeadLetter re-appends a dead letter's original fields onto its
// source stream and marks it replayed in the mirror. Split out from the
// replay command so it can be exercised against a fake broker without a
// live NATS server.
func replayDeadLetter(ctx context.Context, b broker.Broker, store *storage.DeadLetterStore, dl *storage.DeadLetter) (string, error) {
	newID, err := b.Append(ctx, dl.SourceStream, pipeline.Fields(dl.Fields))
	if err != nil {
		return "", fmt.Errorf("replay onto %s: %w", dl.SourceStream, err)
	}

	if err := store.MarkReplayed(dl.ID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("mark replayed: %w", err)
	}

	return newID, nil
}

func openDeadLetterStore(cmd *cobra.Command) (*storage.DeadLetterStore, func(), error) {
	path, err := cmd.Flags().GetString("db-path")
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: path})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return storage.NewDeadLetterStore(db), func() { db.Close() }, nil
}

func newDLQCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "List and replay dead-lettered records",
	}
	cmd.AddCommand(newDLQListCommand(), newDLQReplayCommand())
	return cmd
}

func newDLQListCommand() *cobra.Command {
	opts := struct {
		stream     string
		group      string
		session    string
		unreplayed bool
		limit      int
	}{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openDeadLetterStore(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			letters, err := store.List(storage.DeadLetterListOptions{
				SourceStream:   opts.stream,
				ConsumerGroup:  opts.group,
				SessionUID:     opts.session,
				OnlyUnreplayed: opts.unreplayed,
				Limit:          opts.limit,
			})
			if err != nil {
				return fmt.Errorf("list dead letters: %w", err)
			}
			if len(letters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no dead letters found)")
				return nil
			}
			for _, dl := range letters {
				replayed := "no"
				if dl.ReplayedAt != nil {
					replayed = dl.ReplayedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d  %s/%s  record=%s  type=%s  session=%s  deliveries=%d  at=%s  replayed=%s\n",
					dl.ID, dl.SourceStream, dl.ConsumerGroup, dl.RecordID, dl.RecordType,
					dl.SessionUID, dl.DeliveryCount, dl.DeadLetteredAt.Format(time.RFC3339), replayed)
				if dl.LastError != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "      error: %s\n", dl.LastError)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.stream, "stream", "", "filter by source stream")
	cmd.Flags().StringVar(&opts.group, "group", "", "filter by consumer group")
	cmd.Flags().StringVar(&opts.session, "session", "", "filter by session uid")
	cmd.Flags().BoolVar(&opts.unreplayed, "unreplayed", false, "only show records that have not been replayed")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "maximum rows to return")
	return cmd
}

func newDLQReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id>",
		Short: "Re-append a dead-lettered record onto its source stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid dead letter id %q: %w", args[0], err)
			}

			store, closeFn, err := openDeadLetterStore(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			dl, err := store.GetByID(id)
			if err != nil {
				return fmt.Errorf("load dead letter: %w", err)
			}
			if dl.ReplayedAt != nil {
				return fmt.Errorf("dead letter #%d was already replayed at %s", dl.ID, dl.ReplayedAt.Format(time.RFC3339))
			}

			b, closeBroker, err := connectBroker(cmd)
			if err != nil {
				return err
			}
			defer closeBroker()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			newID, err := replayDeadLetter(ctx, b, store, dl)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "replayed dead letter #%d onto %s as record %s\n", dl.ID, dl.SourceStream, newID)
			return nil
		},
	}
}
