/* Copyright 2026 zotmirror Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zotmirror/zotmirror/pkg/assert"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
)

func TestGenerateKey(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		if err != nil {
			t.Fatal(err)
		}

		assert.Equal(t, len(key), consts.KeyLen, "key length mismatch")
		for _, c := range key {
			if !strings.ContainsRune(keyAlphabet, c) {
				t.Fatalf("key %s contains %q, which is outside the alphabet", key, c)
			}
		}

		seen[key] = true
	}

	// 100 draws from a 32^8 space shouldn't collide
	assert.Equal(t, len(seen), 100, "keys must not repeat")
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")

	ok, err := FileExists(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, false, "missing file mismatch")

	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err = FileExists(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "present file mismatch")
}
