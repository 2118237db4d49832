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

package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/infra"
	"github.com/zotmirror/zotmirror/pkg/cli/log"

	// commands
	"github.com/zotmirror/zotmirror/pkg/cli/cmd/root"
	"github.com/zotmirror/zotmirror/pkg/cli/cmd/sync"
	"github.com/zotmirror/zotmirror/pkg/cli/cmd/version"
)

// versionTag is populated during link time
var versionTag = "master"

// parseFlag extracts a string flag value from command line arguments
// regardless of where it appears. The context has to be built before cobra
// parses the subcommand flags.
func parseFlag(args []string, name string) string {
	prefix := "--" + name + "="
	for i, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
		if arg == "--"+name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	// Missing .env is fine, the variables can come from the environment.
	godotenv.Load()

	libraryID := parseFlag(os.Args[1:], "library")
	if libraryID == "" {
		libraryID = os.Getenv("ZOTERO_LIBRARY_ID")
	}
	if libraryID == "" {
		log.Error("no library id. Pass --library or set ZOTERO_LIBRARY_ID.\n")
		os.Exit(1)
	}

	dbPath := parseFlag(os.Args[1:], "dbPath")

	ctx, err := infra.Init(versionTag, libraryID, dbPath)
	if err != nil {
		panic(errors.Wrap(err, "initializing context"))
	}
	defer ctx.DB.Close()

	ctx.APIKey = os.Getenv("ZOTERO_API_KEY")
	if ctx.APIKey == "" {
		log.Warnf("no ZOTERO_API_KEY set, requests will be unauthenticated\n")
	}

	root.Register(sync.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		os.Exit(1)
	}
}
