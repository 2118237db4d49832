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
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/context"
	"github.com/zotmirror/zotmirror/pkg/cli/database"
	"github.com/zotmirror/zotmirror/pkg/cli/log"
	"github.com/zotmirror/zotmirror/pkg/cli/record"
	"github.com/zotmirror/zotmirror/pkg/cli/utils/diff"
)

// Outcome describes how a remote change was reconciled against the local
// sync status of its subject
type Outcome int

const (
	// OutcomeReplaced means the local data was overwritten with the remote
	// data because the subject had no unpushed local edits
	OutcomeReplaced Outcome = iota
	// OutcomeMerged means remote and local edits were combined using the
	// pristine snapshot as the merge base
	OutcomeMerged
	// OutcomeDeferredLocal means the local data was kept and the subject
	// re-queued for push
	OutcomeDeferredLocal
	// OutcomeDeferredConflict means the subject was parked for manual
	// resolution and the remote data discarded for this pass
	OutcomeDeferredConflict
)

// reconcile applies one remote object to the store. Subjects without
// unpushed local edits are replaced wholesale. Subjects the ledger marks as
// new or modified are resolved according to the merge priority. Subjects
// already parked as conflicts stay untouched until a human resolves them.
func reconcile(ctx context.Ctx, data map[string]interface{}, priority MergePriority) (Outcome, error) {
	key, ok := data["key"].(string)
	if !ok || key == "" {
		return 0, errors.New("remote object has no key")
	}

	status, hasStatus, err := database.GetSyncStatus(ctx.DB, key)
	if err != nil {
		return 0, errors.Wrapf(err, "reading the sync status of %s", key)
	}

	if !hasStatus || status == consts.StatusSynced {
		rec, err := record.FromAPI(data)
		if err != nil {
			return 0, errors.Wrapf(err, "decoding %s", key)
		}
		if err := replace(ctx.DB, rec); err != nil {
			return 0, errors.Wrapf(err, "replacing %s", key)
		}
		return OutcomeReplaced, nil
	}

	if status == consts.StatusConflict {
		log.Debug("%s is parked as a conflict, leaving untouched\n", key)
		return OutcomeDeferredConflict, nil
	}

	switch priority {
	case MergeRemote:
		rec, err := mergeRemote(ctx.DB, key, data)
		if err != nil {
			return 0, errors.Wrapf(err, "merging %s", key)
		}
		if err := replace(ctx.DB, rec); err != nil {
			return 0, errors.Wrapf(err, "replacing %s", key)
		}
		return OutcomeMerged, nil
	case MergeLocal:
		if err := database.SetSyncStatus(ctx.DB, key, consts.StatusModified); err != nil {
			return 0, errors.Wrapf(err, "stamping %s", key)
		}
		return OutcomeDeferredLocal, nil
	case MergeIgnore:
		report, err := conflictReport(ctx.DB, key, data)
		if err != nil {
			return 0, errors.Wrapf(err, "reporting the conflict on %s", key)
		}
		log.Warnf("conflict on %s, resolve manually:\n%s", key, report)

		if err := database.SetSyncStatus(ctx.DB, key, consts.StatusConflict); err != nil {
			return 0, errors.Wrapf(err, "stamping %s", key)
		}
		return OutcomeDeferredConflict, nil
	default:
		return 0, errors.Errorf("unknown merge priority %q", priority)
	}
}

// replace rewrites the subject's metadata with the given record and stamps
// it synced, all within one transaction. Binary payloads survive.
func replace(db *database.DB, rec record.Record) error {
	triples, err := record.ToTriples(rec)
	if err != nil {
		return errors.Wrap(err, "mapping the record to triples")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	if err := database.DeleteSubject(tx, rec.Key, false); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "clearing the old metadata")
	}
	for _, t := range triples {
		if err := database.InsertFact(tx, t.Subject, t.Predicate, t.Object); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "inserting a triple")
		}
	}
	if err := database.SetSyncStatus(tx, rec.Key, consts.StatusSynced); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "stamping the subject")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// mergeRemote performs a three-way merge of the remote data onto the local
// edits. The patch from the pristine snapshot to the remote data is applied
// to the local data, so local edits survive unless the same field also
// changed on the server, in which case the server wins.
func mergeRemote(h database.Handle, key string, remote map[string]interface{}) (record.Record, error) {
	local, err := record.Load(h, key)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "loading the local record")
	}
	localJSON, err := json.Marshal(record.Upload(local))
	if err != nil {
		return record.Record{}, errors.Wrap(err, "encoding the local record")
	}

	pristine, ok, err := database.Get(h, key, consts.PredSyncData)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "reading the pristine snapshot")
	}
	if !ok {
		// No common ancestor. Every remote field is treated as changed.
		pristine = "{}"
	}

	remoteJSON, err := json.Marshal(remote)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "encoding the remote data")
	}

	patch, err := jsonpatch.CreateMergePatch([]byte(pristine), remoteJSON)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "computing the remote delta")
	}
	mergedJSON, err := jsonpatch.MergePatch(localJSON, patch)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "applying the remote delta")
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return record.Record{}, errors.Wrap(err, "decoding the merged data")
	}

	rec, err := record.FromAPI(merged)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "decoding the merged record")
	}

	return rec, nil
}

// conflictReport renders a line diff between the local and remote data so
// the user can resolve a parked conflict by hand
func conflictReport(h database.Handle, key string, remote map[string]interface{}) (string, error) {
	local, err := record.Load(h, key)
	if err != nil {
		return "", errors.Wrap(err, "loading the local record")
	}
	localJSON, err := json.MarshalIndent(record.Upload(local), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding the local record")
	}
	remoteJSON, err := json.MarshalIndent(remote, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding the remote data")
	}

	var sb strings.Builder
	for _, d := range diff.Do(string(localJSON)+"\n", string(remoteJSON)+"\n") {
		var marker string
		switch d.Type {
		case diff.DiffDelete:
			marker = "<<<<<<< Local\n"
		case diff.DiffInsert:
			marker = ">>>>>>> Server\n"
		default:
			marker = ""
		}

		if marker != "" {
			sb.WriteString(marker)
		}
		sb.WriteString(d.Text)
	}

	return sb.String(), nil
}
