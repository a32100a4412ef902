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


// Package pipeline orchestrates batch embedding jobs end to end: chunking
// pending rows into bounded request files, submitting them to the external
// batch service, tracking their lifecycle across process restarts, and
// applying completed results back to the record store exactly once.
//
// Every stage is independently invocable and runs sequentially to
// completion. The ledger is the only state shared between invocations; the
// process is expected to exit between submission and result application
// while the external service works. Clients are injected into each stage so
// tests substitute fakes.
package pipeline
