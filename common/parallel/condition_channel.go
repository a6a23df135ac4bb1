// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

// ConditionChannel coalesces signals. Any number of signals sent before the
// receiver wakes up are delivered as one.
type ConditionChannel struct {
	C chan struct{}
}

func NewConditionChannel() *ConditionChannel {
	return &ConditionChannel{C: make(chan struct{}, 1)}
}

func (c *ConditionChannel) Signal() {
	select {
	case c.C <- struct{}{}:
	default:
	}
}
