// Copyright 2026 Devlease Authors
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

// Package retry defines the polling policy value blocking operations accept.
package retry

import "time"

// Policy bounds a polling wait: give up once Timeout has elapsed, sleeping
// Interval between attempts. Passing the policy explicitly instead of burying
// constants in the wait loops lets callers shrink both values to zero.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}
