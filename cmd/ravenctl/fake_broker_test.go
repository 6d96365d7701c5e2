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
	"errors"
	"time"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

// failingBroker is a broker.Broker whose every method errors, used to
// exercise dlq replay's error path without a live connection.
type failingBroker struct{}

func (failingBroker) EnsureStream(ctx context.Context, stream string) error { return errUnavailable }
func (failingBroker) EnsureGroup(ctx context.Context, stream, group string) error {
	return errUnavailable
}
func (failingBroker) Append(ctx context.Context, stream string, fields pipeline.Fields) (string, error) {
	return "", errUnavailable
}
func (failingBroker) ReadGroup(ctx context.Context, stream, group string, batchSize int, block time.Duration) ([]*broker.Record, error) {
	return nil, errUnavailable
}
func (failingBroker) Claim(ctx context.Context, stream, group string, minIdle time.Duration, batchSize int) ([]*broker.Record, error) {
	return nil, errUnavailable
}
func (failingBroker) Pending(ctx context.Context, stream, group string) ([]broker.PendingEntry, error) {
	return nil, errUnavailable
}
func (failingBroker) StreamInfo(ctx context.Context, stream string) (broker.StreamInfo, error) {
	return broker.StreamInfo{}, errUnavailable
}
func (failingBroker) GroupInfo(ctx context.Context, stream, group string) (broker.GroupInfo, error) {
	return broker.GroupInfo{}, errUnavailable
}
func (failingBroker) Close() error { return nil }

var errUnavailable = errors.New("broker unavailable")
