// Copyright 2025 Poiesic Systems
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


package core

// JobStatus is the lifecycle state of a batch job.
//
// The state machine is strictly forward:
//
//	submitted → in_progress → {completed | failed | cancelled | expired}
//
// Terminal states are sticky; a job never leaves one except by explicit
// ledger cleanup, which removes the entry entirely.
type JobStatus string

const (
	StatusSubmitted  JobStatus = "submitted"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
	StatusExpired    JobStatus = "expired"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInProgress, StatusCompleted,
		StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition can occur from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a forward step in
// the state machine. Self-transitions are allowed so that re-polling an
// unchanged job is a no-op rather than an error.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if s == StatusSubmitted {
		return true
	}
	// in_progress may only advance to a terminal state.
	return next.Terminal()
}
