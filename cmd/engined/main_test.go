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

package main

import (
	"testing"

	"github.com/cloudweave/engine/internal/config"
)

func TestNewStore_DefaultsToMemory(t *testing.T) {
	st, err := newStore(config.StoreConfig{})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if st == nil {
		t.Fatal("expected a non-nil store")
	}
}

func TestNewStore_Sqlite(t *testing.T) {
	st, err := newStore(config.StoreConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if st == nil {
		t.Fatal("expected a non-nil store")
	}
}

func TestStringProp(t *testing.T) {
	props := map[string]any{"context": "kind-test"}
	if got := stringProp(props, "context"); got != "kind-test" {
		t.Errorf("stringProp() = %q, want kind-test", got)
	}
	if got := stringProp(nil, "context"); got != "" {
		t.Errorf("stringProp(nil, ...) = %q, want empty", got)
	}
	if got := stringProp(props, "missing"); got != "" {
		t.Errorf("stringProp() for missing key = %q, want empty", got)
	}
}
