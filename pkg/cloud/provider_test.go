// Copyright 2025 The CloudWeave Authors
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

package cloud

import "testing"

func TestDeploymentFilter_Matches(t *testing.T) {
	dep := &DeploymentStatus{Name: "web-frontend", State: DeploymentStateRunning}

	tests := []struct {
		name   string
		filter *DeploymentFilter
		want   bool
	}{
		{"nil filter matches everything", nil, true},
		{"zero filter matches everything", &DeploymentFilter{}, true},
		{"matching state", &DeploymentFilter{State: DeploymentStateRunning}, true},
		{"non-matching state", &DeploymentFilter{State: DeploymentStateFailed}, false},
		{"matching name substring", &DeploymentFilter{NameContains: "frontend"}, true},
		{"non-matching name substring", &DeploymentFilter{NameContains: "backend"}, false},
		{"matching state and name", &DeploymentFilter{State: DeploymentStateRunning, NameContains: "web"}, true},
		{"matching state, non-matching name", &DeploymentFilter{State: DeploymentStateRunning, NameContains: "backend"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(dep); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
