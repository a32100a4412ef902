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


// Package batchapi abstracts the external asynchronous batch-computation
// service. The pipeline sees three operations: submit a request file as a
// job, poll a job's state, and download a completed job's output. The
// service runs jobs on its own infrastructure on a timescale of minutes to
// hours, which is why nothing in this package blocks waiting for results.
//
// The package also defines the newline-delimited request and result record
// formats carried in chunk files and output payloads.
package batchapi
