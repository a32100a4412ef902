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


// Package ledger defines the durable record of every batch job ever
// submitted. The ledger is the only state shared across invocations; it is
// what makes the pipeline resumable after the process exits between
// submission and result application.
//
// # Contract
//
// A Store holds a single document: the full array of batch jobs. Every
// mutation is a read-modify-write cycle and every write replaces the whole
// document atomically. A crash mid-write must leave the previous document
// intact. Concurrent invocations are not supported and must be serialized by
// the operator; implementations provide no internal locking.
//
// # Backends
//
// Two interchangeable backends exist:
//
//   - jsonfile: one human-readable JSON file, rewritten via
//     write-to-temp-then-rename.
//   - badger: an embedded transactional store holding the same document,
//     for deployments that want crash safety from the storage engine
//     rather than from rename semantics.
//
// Constructors return the Store interface to keep callers decoupled from
// the backend.
package ledger
