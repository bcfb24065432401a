// Copyright 2026 PageDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sync

import (
	"context"

	"pagedb/internal/common"
	"pagedb/internal/util"
)

type request struct {
	tag  FileTag
	kind RequestKind
}

// Intake is the bounded writer->checkpointer forwarding queue. Writers that do
// not own the pending-ops table hand their requests to the scheduler through
// it; the scheduler absorbs the queue at well-defined points during its pass.
type Intake struct {
	ch chan request
}

func newIntake(depth int) *Intake {
	return &Intake{ch: make(chan request, depth)}
}

// Forward attempts to enqueue a request without blocking.
// Returns false if the queue is full.
func (q *Intake) Forward(tag FileTag, kind RequestKind) bool {
	select {
	case q.ch <- request{tag: tag, kind: kind}:
		return true
	default:
		return false
	}
}

// Register records a sync request from a non-owning writer. If the queue is
// full and retryOnError is set, it retries with a fixed backoff until the
// checkpointer drains the queue or ctx is canceled; otherwise it reports
// failure immediately. This is the only blocking point exposed to callers
// outside the owning process.
//
// Escaping early on an UnlinkRequest would leave a no-longer-used file on
// disk, so callers of that kind should pass retryOnError=true.
func (q *Intake) Register(ctx context.Context, tag FileTag, kind RequestKind, retryOnError bool) bool {
	if q.Forward(tag, kind) {
		return true
	}
	if !retryOnError {
		return false
	}
	err := util.Retry(ctx, func() error {
		if q.Forward(tag, kind) {
			return nil
		}
		return common.ErrQueueFull
	}, util.ForwardRetryOptions(ctx)...)
	return err == nil
}
