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

// Package infra provides operations and definitions for the
// local infrastructure for zotmirror
package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zotmirror/zotmirror/pkg/cli/client"
	"github.com/zotmirror/zotmirror/pkg/cli/config"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/context"
	"github.com/zotmirror/zotmirror/pkg/cli/database"
	"github.com/zotmirror/zotmirror/pkg/cli/log"
	"github.com/zotmirror/zotmirror/pkg/cli/utils"
	"github.com/zotmirror/zotmirror/pkg/clock"
	"github.com/zotmirror/zotmirror/pkg/dirs"
)

const (
	// DefaultAPIEndpoint is the default API endpoint used when none is configured
	DefaultAPIEndpoint = "https://api.zotero.org"
	// defaultRequestTimeout bounds every remote call when the config does not
	// say otherwise
	defaultRequestTimeout = 60
)

// RunEFunc is a function type of zotmirror commands
type RunEFunc func(*cobra.Command, []string) error

// getDBPath returns the path of the store for the given library. Each
// library is mirrored into its own database.
func getDBPath(paths context.Paths, libraryID, customPath string) string {
	if customPath != "" {
		return customPath
	}

	return fmt.Sprintf("%s/%s/%s.db", paths.Data, consts.DirName, libraryID)
}

// Init initializes the zotmirror environment and returns a new context for
// the given library
func Init(versionTag, libraryID, customDBPath string) (*context.Ctx, error) {
	paths := context.Paths{
		Home:   dirs.Home,
		Config: dirs.ConfigHome,
		Data:   dirs.DataHome,
		Cache:  dirs.CacheHome,
	}

	ctx := context.Ctx{
		Paths:     paths,
		Version:   versionTag,
		LibraryID: libraryID,
	}

	if err := initFiles(ctx); err != nil {
		return nil, errors.Wrap(err, "initializing files")
	}

	dbPath := getDBPath(paths, libraryID, customDBPath)
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening the store at %s", dbPath)
	}
	if err := database.InitSchema(db); err != nil {
		return nil, errors.Wrap(err, "initializing the store schema")
	}
	ctx.DB = db

	cf, err := config.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	ctx.APIEndpoint = cf.APIEndpoint
	ctx.Clock = clock.New()
	ctx.HTTPClient = client.NewRateLimitedHTTPClient(time.Duration(cf.RequestTimeout) * time.Second)

	log.Debug("context: %+v\n", context.Redact(ctx))

	return &ctx, nil
}

// initConfigFile populates a new config file if it does not exist yet
func initConfigFile(ctx context.Ctx) error {
	path := config.GetPath(ctx)
	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrap(err, "checking if config exists")
	}
	if ok {
		return nil
	}

	cf := config.Config{
		APIEndpoint:    DefaultAPIEndpoint,
		RequestTimeout: defaultRequestTimeout,
	}

	if err := config.Write(ctx, cf); err != nil {
		return errors.Wrap(err, "writing config")
	}

	return nil
}

// initFiles creates, if necessary, the zotmirror directories and files inside
func initFiles(ctx context.Ctx) error {
	if err := initDirs(ctx.Paths); err != nil {
		return errors.Wrap(err, "creating the zotmirror dirs")
	}
	if err := initConfigFile(ctx); err != nil {
		return errors.Wrap(err, "generating the config file")
	}

	return nil
}

func initDirs(paths context.Paths) error {
	for _, base := range []string{paths.Config, paths.Data} {
		dir := fmt.Sprintf("%s/%s", base, consts.DirName)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}

	return nil
}
