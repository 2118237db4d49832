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

// Package sync implements one synchronization pass between a library store
// and the Zotero server. The workflow follows the guidelines at
// https://www.zotero.org/support/dev/web_api/v3/syncing
package sync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/client"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/context"
	"github.com/zotmirror/zotmirror/pkg/cli/database"
	"github.com/zotmirror/zotmirror/pkg/cli/log"
	"github.com/zotmirror/zotmirror/pkg/cli/record"
)

// MergePriority is the conflict resolution strategy for subjects that
// changed on both sides
type MergePriority string

const (
	// MergeRemote merges remote changes on top of local edits using the
	// pristine snapshot as the base
	MergeRemote MergePriority = "remote"
	// MergeLocal keeps the local data and re-queues the subject for push
	MergeLocal MergePriority = "local"
	// MergeIgnore defers the conflict for manual resolution
	MergeIgnore MergePriority = "ignore"
)

// ParseMergePriority validates a merge priority value
func ParseMergePriority(s string) (MergePriority, error) {
	switch MergePriority(s) {
	case MergeRemote, MergeLocal, MergeIgnore:
		return MergePriority(s), nil
	default:
		return "", errors.Errorf("unknown merge priority %q", s)
	}
}

// Options configures one sync pass
type Options struct {
	// SinceVersion overrides the version bookmark. A negative value means
	// "use the highest version recorded in the store".
	SinceVersion       int
	FetchGroupMetadata bool
	PropagateDeletions bool
	DownloadFiles      bool
	MergePriority      MergePriority
}

// Result aggregates the per-subject outcomes of a sync pass
type Result struct {
	Since            int
	Replaced         int
	Merged           int
	DeferredLocal    int
	DeferredConflict int
	Deleted          int
	Pushed           int
	FilesDownloaded  int
}

// Run performs one synchronization pass against the server
func Run(ctx context.Ctx, opts Options) (Result, error) {
	var ret Result

	if opts.MergePriority == "" {
		opts.MergePriority = MergeRemote
	}
	if _, err := ParseMergePriority(string(opts.MergePriority)); err != nil {
		return ret, errors.Wrap(err, "validating options")
	}

	if opts.FetchGroupMetadata {
		if err := fetchLibraryMetadata(ctx); err != nil {
			return ret, errors.Wrap(err, "fetching library metadata")
		}
	}

	since := opts.SinceVersion
	if since < 0 {
		v, err := database.HighestVersion(ctx.DB)
		if err != nil {
			return ret, errors.Wrap(err, "reading the version bookmark")
		}
		since = v
	}
	ret.Since = since

	log.Debug("starting sync pass for library %s since version %d\n", ctx.LibraryID, since)

	if opts.PropagateDeletions {
		n, err := processRemoteDeletions(ctx, since)
		if err != nil {
			return ret, errors.Wrap(err, "processing remote deletions")
		}
		ret.Deleted = n
	}

	if err := processRemoteChanges(ctx, since, opts.MergePriority, &ret); err != nil {
		return ret, errors.Wrap(err, "processing remote changes")
	}

	pushed, err := processLocalChanges(ctx)
	if err != nil {
		return ret, errors.Wrap(err, "processing local changes")
	}
	ret.Pushed = pushed

	if opts.DownloadFiles {
		n, err := downloadNewRemoteFiles(ctx)
		if err != nil {
			return ret, errors.Wrap(err, "downloading attachment files")
		}
		ret.FilesDownloaded = n
	}

	if err := recordSyncTime(ctx); err != nil {
		return ret, errors.Wrap(err, "recording the sync time")
	}

	return ret, nil
}

// recordSyncTime stamps the wall time of the completed pass on the library
// record
func recordSyncTime(ctx context.Ctx) error {
	at := ctx.Clock.Now().UTC().Format(time.RFC3339)

	return database.Put(ctx.DB, libraryKey(ctx.LibraryID), consts.PredLastSync, at)
}

// fetchLibraryMetadata refreshes the library root record from the group
// endpoint. An authorization failure aborts only this step.
func fetchLibraryMetadata(ctx context.Ctx) error {
	group, err := client.FetchGroupMetadata(ctx)
	if err != nil {
		if client.IsAuthFailure(err) {
			log.Warnf("not authorized to read group metadata, skipping: %v\n", err)
			return nil
		}
		return errors.Wrap(err, "fetching group metadata")
	}

	key := libraryKey(ctx.LibraryID)

	tx, err := ctx.DB.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	// Singleton upserts; custom local fields on the library record survive.
	facts := []database.Triple{
		{Subject: key, Predicate: "key", Object: ctx.LibraryID},
		{Subject: key, Predicate: consts.PredItemType, Object: consts.ItemTypeLibrary},
		{Subject: key, Predicate: "name", Object: group.Name},
		{Subject: key, Predicate: "description", Object: group.Description},
		{Subject: key, Predicate: "url", Object: group.URL},
		{Subject: key, Predicate: consts.PredVersion, Object: strconv.Itoa(group.Version)},
	}
	for _, f := range facts {
		if err := database.Put(tx, f.Subject, f.Predicate, f.Object); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "storing library metadata")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// libraryKey pads the numeric library id to the fixed subject width
func libraryKey(libraryID string) string {
	return fmt.Sprintf("%08s", libraryID)
}

// processRemoteDeletions removes subjects reported by the deletion feed.
// The feed does not report permanently removed standalone notes, so this
// step is best-effort.
func processRemoteDeletions(ctx context.Ctx, since int) (int, error) {
	deleted, err := client.DeletedSince(ctx, since)
	if err != nil {
		return 0, errors.Wrap(err, "fetching the deletion feed")
	}

	count := 0
	for _, key := range append(deleted.Items, deleted.Collections...) {
		tx, err := ctx.DB.Begin()
		if err != nil {
			return count, errors.Wrap(err, "beginning a transaction")
		}

		if err := database.DeleteSubject(tx, key, true); err != nil {
			tx.Rollback()
			return count, errors.Wrapf(err, "deleting %s", key)
		}

		if err := tx.Commit(); err != nil {
			return count, errors.Wrap(err, "committing transaction")
		}

		log.Debug("deleted %s\n", key)
		count++
	}

	return count, nil
}

// processRemoteChanges pulls objects that changed on the server since the
// given version and reconciles each against the local sync status.
func processRemoteChanges(ctx context.Ctx, since int, priority MergePriority, ret *Result) error {
	itemVersions, err := client.ItemVersions(ctx, since)
	if err != nil {
		return errors.Wrap(err, "fetching item versions")
	}
	collectionVersions, err := client.CollectionVersions(ctx, since)
	if err != nil {
		return errors.Wrap(err, "fetching collection versions")
	}

	itemQueue, err := queueOutdated(ctx.DB, itemVersions)
	if err != nil {
		return errors.Wrap(err, "queueing items")
	}
	collectionQueue, err := queueOutdated(ctx.DB, collectionVersions)
	if err != nil {
		return errors.Wrap(err, "queueing collections")
	}

	log.Debug("queued %d items and %d collections\n", len(itemQueue), len(collectionQueue))

	items, err := client.FetchItems(ctx, itemQueue)
	if err != nil {
		return errors.Wrap(err, "fetching items")
	}
	collections, err := client.FetchCollections(ctx, collectionQueue)
	if err != nil {
		return errors.Wrap(err, "fetching collections")
	}

	// the server omits itemType for collections
	for _, c := range collections {
		c.Data[consts.PredItemType] = consts.ItemTypeCollection
	}

	for _, obj := range append(items, collections...) {
		outcome, err := reconcile(ctx, obj.Data, priority)
		if err != nil {
			return errors.Wrapf(err, "reconciling %s", obj.Key)
		}

		switch outcome {
		case OutcomeReplaced:
			ret.Replaced++
		case OutcomeMerged:
			ret.Merged++
		case OutcomeDeferredLocal:
			ret.DeferredLocal++
		case OutcomeDeferredConflict:
			ret.DeferredConflict++
		}
	}

	return nil
}

// queueOutdated returns the keys whose remote version is ahead of the local
// store, or which are missing locally.
func queueOutdated(h database.Handle, versions map[string]int) ([]string, error) {
	var ret []string

	for key, remoteVersion := range versions {
		local, ok, err := database.Get(h, key, consts.PredVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "reading the local version of %s", key)
		}
		if !ok {
			ret = append(ret, key)
			continue
		}

		localVersion, err := strconv.Atoi(local)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing the local version of %s", key)
		}
		if localVersion < remoteVersion {
			ret = append(ret, key)
		}
	}

	return ret, nil
}

// localChanges buckets the subjects the ledger marks for push
type localChanges struct {
	newItems            []string
	modifiedItems       []string
	newCollections      []string
	modifiedCollections []string
}

// getUpdatedLocalObjects scans the ledger for subjects marked new or
// modified and classifies them by type. Library records are not supported
// for push and are skipped.
func getUpdatedLocalObjects(h database.Handle) (localChanges, error) {
	var ret localChanges

	for _, status := range []string{consts.StatusNew, consts.StatusModified} {
		keys, err := database.Query(h, consts.PredSyncStatus, status)
		if err != nil {
			return ret, errors.Wrapf(err, "querying %s subjects", status)
		}

		for _, key := range keys {
			itemType, _, err := database.Get(h, key, consts.PredItemType)
			if err != nil {
				return ret, errors.Wrapf(err, "reading the type of %s", key)
			}

			switch {
			case itemType == consts.ItemTypeLibrary:
				log.Debug("skipping library record %s: push is not supported\n", key)
			case itemType == consts.ItemTypeCollection && status == consts.StatusNew:
				ret.newCollections = append(ret.newCollections, key)
			case itemType == consts.ItemTypeCollection:
				ret.modifiedCollections = append(ret.modifiedCollections, key)
			case status == consts.StatusNew:
				ret.newItems = append(ret.newItems, key)
			default:
				ret.modifiedItems = append(ret.modifiedItems, key)
			}
		}
	}

	return ret, nil
}

// processLocalChanges pushes the ledger's new and modified subjects to the
// server, in the order: new items, modified items, new collections,
// modified collections. Subjects of a bucket stay at their prior status
// when the write does not land, so they are retried on the next pass.
func processLocalChanges(ctx context.Ctx) (int, error) {
	changes, err := getUpdatedLocalObjects(ctx.DB)
	if err != nil {
		return 0, errors.Wrap(err, "collecting local changes")
	}

	pushed := 0

	buckets := []struct {
		keys  []string
		write func(context.Ctx, []map[string]interface{}) (client.WriteResp, error)
	}{
		{changes.newItems, client.CreateItems},
		{changes.modifiedItems, client.UpdateItems},
		{changes.newCollections, client.CreateCollections},
		{changes.modifiedCollections, client.UpdateCollections},
	}

	for _, bucket := range buckets {
		if len(bucket.keys) == 0 {
			continue
		}

		uploads := make([]map[string]interface{}, 0, len(bucket.keys))
		for _, key := range bucket.keys {
			r, err := record.Load(ctx.DB, key)
			if err != nil {
				return pushed, errors.Wrapf(err, "loading %s", key)
			}
			uploads = append(uploads, record.Upload(r))
		}

		resp, err := bucket.write(ctx, uploads)
		if err != nil {
			return pushed, errors.Wrap(err, "uploading a batch")
		}
		if !resp.Ok() {
			log.Debug("upload response empty, keeping %d subjects for retry\n", len(bucket.keys))
			continue
		}

		if err := setSynced(ctx.DB, bucket.keys); err != nil {
			return pushed, errors.Wrap(err, "stamping pushed subjects")
		}
		pushed += len(bucket.keys)
	}

	return pushed, nil
}

// setSynced stamps every given subject as synced within one transaction
func setSynced(db *database.DB, keys []string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	for _, key := range keys {
		if err := database.SetSyncStatus(tx, key, consts.StatusSynced); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "stamping %s", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// downloadNewRemoteFiles fetches attachment payloads for subjects whose
// link mode marks them as remote-backed and which have no local payload. A
// missing file on the server is logged and skipped.
func downloadNewRemoteFiles(ctx context.Ctx) (int, error) {
	var missing []string

	for _, mode := range []string{"imported_file", "imported_url", "embedded_image"} {
		keys, err := database.Query(ctx.DB, consts.PredLinkMode, mode)
		if err != nil {
			return 0, errors.Wrapf(err, "querying %s attachments", mode)
		}

		for _, key := range keys {
			_, ok, err := database.GetBlob(ctx.DB, key, consts.PredFile)
			if err != nil {
				return 0, errors.Wrapf(err, "checking the payload of %s", key)
			}
			if !ok {
				missing = append(missing, key)
			}
		}
	}

	count := 0
	for _, key := range missing {
		log.Debug("downloading file for %s\n", key)

		blob, err := client.FetchFile(ctx, key)
		if err != nil {
			if client.IsNotFound(err) {
				log.Warnf("no file on the server for %s, skipping\n", key)
				continue
			}
			return count, errors.Wrapf(err, "downloading the file for %s", key)
		}

		if err := database.PutBlob(ctx.DB, key, consts.PredFile, blob); err != nil {
			return count, errors.Wrapf(err, "storing the file for %s", key)
		}
		count++
	}

	return count, nil
}
