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

// Package context defines the zotmirror runtime context
package context

import (
	"net/http"

	"github.com/zotmirror/zotmirror/pkg/cli/database"
	"github.com/zotmirror/zotmirror/pkg/clock"
)

// Paths contain directory definitions
type Paths struct {
	Home   string
	Config string
	Data   string
	Cache  string
}

// Ctx is a context holding the information of the current runtime. It
// carries the store handle for one library, so operating on multiple
// libraries means building one Ctx per library.
type Ctx struct {
	Paths       Paths
	APIEndpoint string
	Version     string
	DB          *database.DB
	APIKey      string
	LibraryID   string
	Clock       clock.Clock
	HTTPClient  *http.Client
}

// Redact replaces private information from the context with a set of
// placeholder values.
func Redact(ctx Ctx) Ctx {
	var apiKey string
	if ctx.APIKey != "" {
		apiKey = "1"
	} else {
		apiKey = "0"
	}
	ctx.APIKey = apiKey

	return ctx
}
