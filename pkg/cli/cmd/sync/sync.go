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

package sync

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zotmirror/zotmirror/pkg/cli/context"
	"github.com/zotmirror/zotmirror/pkg/cli/infra"
	"github.com/zotmirror/zotmirror/pkg/cli/log"
	"github.com/zotmirror/zotmirror/pkg/cli/sync"
)

var example = `
  zotmirror sync
  zotmirror sync --metadata --deletions --files
  zotmirror sync --since 0 --merge local`

var sinceFlag int
var metadataFlag bool
var deletionsFlag bool
var filesFlag bool
var mergeFlag string

// NewCmd returns a new sync command
func NewCmd(ctx context.Ctx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Sync the local store with the Zotero server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.IntVar(&sinceFlag, "since", -1, "sync changes since this library version instead of the stored bookmark")
	f.BoolVar(&metadataFlag, "metadata", false, "refresh the library metadata from the group endpoint")
	f.BoolVar(&deletionsFlag, "deletions", false, "propagate remote deletions into the local store")
	f.BoolVar(&filesFlag, "files", false, "download missing attachment files")
	f.StringVar(&mergeFlag, "merge", "remote", "conflict resolution priority: remote, local or ignore")

	return cmd
}

func newRun(ctx context.Ctx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		priority, err := sync.ParseMergePriority(mergeFlag)
		if err != nil {
			return errors.Wrap(err, "parsing the --merge flag")
		}

		log.Infof("syncing library %s\n", ctx.LibraryID)

		result, err := sync.Run(ctx, sync.Options{
			SinceVersion:       sinceFlag,
			FetchGroupMetadata: metadataFlag,
			PropagateDeletions: deletionsFlag,
			DownloadFiles:      filesFlag,
			MergePriority:      priority,
		})
		if err != nil {
			return errors.Wrap(err, "syncing")
		}

		log.Infof("pulled %d, merged %d, deleted %d, pushed %d since version %d\n",
			result.Replaced, result.Merged, result.Deleted, result.Pushed, result.Since)
		if result.DeferredLocal > 0 {
			log.Infof("kept local edits on %d subjects, they will push on the next run\n", result.DeferredLocal)
		}
		if result.DeferredConflict > 0 {
			log.Warnf("%d subjects are parked as conflicts and need manual resolution\n", result.DeferredConflict)
		}
		if result.FilesDownloaded > 0 {
			log.Infof("downloaded %d attachment files\n", result.FilesDownloaded)
		}
		log.Success("done\n")

		return nil
	}
}
