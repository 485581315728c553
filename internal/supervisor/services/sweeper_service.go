// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package services

import (
	"context"
	"time"

	"github.com/sessionlens/sessionlens/internal/logging"
)

// ViewSweeper drops session views that nothing has queried recently.
type ViewSweeper interface {
	SweepIdleViews(ttl time.Duration) int
}

// SweeperService periodically evicts idle session views so an engine
// serving a long-lived dashboard does not accumulate one table per
// session ever opened.
type SweeperService struct {
	sweeper  ViewSweeper
	ttl      time.Duration
	interval time.Duration
}

// NewSweeperService sweeps views idle longer than ttl every interval.
func NewSweeperService(sweeper ViewSweeper, ttl, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SweeperService{
		sweeper:  sweeper,
		ttl:      ttl,
		interval: interval,
	}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if swept := s.sweeper.SweepIdleViews(s.ttl); swept > 0 {
				logging.Debug().Int("views", swept).Msg("Swept idle session views")
			}
		}
	}
}

func (s *SweeperService) String() string {
	return "view-sweeper"
}
