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
	"time"

	"github.com/spf13/cobra"

	"github.com/heyraven/raven-pipeline/internal/broker"
)

func connectBroker(cmd *cobra.Command) (broker.Broker, func(), error) {
	url, err := cmd.Flags().GetString("broker-url")
	if err != nil {
		return nil, nil, err
	}
	b, err := broker.NewNATSBroker(broker.NATSBrokerConfig{
		URL:           url,
		Name:          "ravenctl",
		MaxReconnect:  2,
		ReconnectWait: time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}
	return b, func() { b.Close() }, nil
}

func newStreamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect broker streams",
	}
	cmd.AddCommand(newStreamInfoCommand())
	return cmd
}

func newStreamInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <stream>",
		Short: "Show a stream's size and sequence range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := connectBroker(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			info, err := b.StreamInfo(ctx, args[0])
			if err != nil {
				return fmt.Errorf("stream info: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "stream:   %s\nmessages: %d\nbytes:    %d\nfirstseq: %d\nlastseq:  %d\n",
				info.Name, info.Messages, info.Bytes, info.FirstSeq, info.LastSeq)
			return nil
		},
	}
}

func newPendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending <stream> <group>",
		Short: "List in-flight, unacknowledged records for a consumer group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := connectBroker(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			info, err := b.GroupInfo(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("group info: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %s on %s: pending=%d ack_pending=%d redelivered=%d\n",
				info.Name, info.Stream, info.NumPending, info.NumAckPending, info.NumRedelivered)

			entries, err := b.Pending(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("pending: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no records in flight on this process)")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  deliveries=%d  delivered_at=%s\n",
					e.ID, e.DeliveryCount, e.DeliveredAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
