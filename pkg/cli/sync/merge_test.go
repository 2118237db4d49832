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
	"strings"
	"testing"

	"github.com/zotmirror/zotmirror/pkg/assert"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/context"
	"github.com/zotmirror/zotmirror/pkg/cli/database"
	"github.com/zotmirror/zotmirror/pkg/cli/record"
)

// seedSynced stores the given remote data as a cleanly synced subject,
// pristine snapshot included
func seedSynced(t *testing.T, db *database.DB, data map[string]interface{}) {
	t.Helper()

	rec, err := record.FromAPI(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := replace(db, rec); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileReplaced(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	ctx := context.Ctx{DB: db}

	// stale local copy with a payload that has to survive the rewrite
	seedSynced(t, db, map[string]interface{}{
		"key":      "AAAABBBB",
		"version":  float64(1),
		"itemType": "book",
		"title":    "old title",
	})
	if err := database.PutBlob(db, "AAAABBBB", consts.PredFile, []byte{0x01}); err != nil {
		t.Fatal(err)
	}

	outcome, err := reconcile(ctx, map[string]interface{}{
		"key":      "AAAABBBB",
		"version":  float64(2),
		"itemType": "book",
		"title":    "new title",
	}, MergeRemote)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, outcome, OutcomeReplaced, "outcome mismatch")

	got, err := record.Load(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got.Fields["title"][0], "new title", "title mismatch")
	assert.Equal(t, got.Version, 2, "version mismatch")

	status, _, err := database.GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, status, consts.StatusSynced, "status mismatch")

	_, ok, err := database.GetBlob(db, "AAAABBBB", consts.PredFile)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "payload must survive")

	_, ok, err = database.Get(db, "AAAABBBB", consts.PredSyncData)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "pristine snapshot must be stored")
}

func TestReconcileUnknownSubject(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	ctx := context.Ctx{DB: db}

	outcome, err := reconcile(ctx, map[string]interface{}{
		"key":      "AAAABBBB",
		"version":  float64(5),
		"itemType": "book",
		"title":    "fresh",
	}, MergeRemote)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, outcome, OutcomeReplaced, "outcome mismatch")

	got, ok, err := database.Get(db, "AAAABBBB", "title")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "title presence mismatch")
	assert.Equal(t, got, "fresh", "title mismatch")
}

func TestReconcileMergeRemote(t *testing.T) {
	setup := func(t *testing.T) (context.Ctx, *database.DB) {
		db := database.InitTestMemoryDB(t)

		seedSynced(t, db, map[string]interface{}{
			"key":      "AAAABBBB",
			"version":  float64(1),
			"itemType": "book",
			"title":    "base title",
			"place":    "London",
		})

		// a local edit that has not pushed yet
		database.MustPut(t, db, "AAAABBBB", "title", "local title")
		if err := database.SetSyncStatus(db, "AAAABBBB", consts.StatusModified); err != nil {
			t.Fatal(err)
		}

		return context.Ctx{DB: db}, db
	}

	t.Run("disjoint edits combine", func(t *testing.T) {
		ctx, db := setup(t)

		outcome, err := reconcile(ctx, map[string]interface{}{
			"key":      "AAAABBBB",
			"version":  float64(2),
			"itemType": "book",
			"title":    "base title",
			"place":    "Paris",
		}, MergeRemote)
		if err != nil {
			t.Fatal(err)
		}

		assert.Equal(t, outcome, OutcomeMerged, "outcome mismatch")

		got, err := record.Load(db, "AAAABBBB")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, got.Fields["title"][0], "local title", "the local edit must survive")
		assert.Equal(t, got.Fields["place"][0], "Paris", "the remote edit must apply")
		assert.Equal(t, got.Version, 2, "version mismatch")

		status, _, err := database.GetSyncStatus(db, "AAAABBBB")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, status, consts.StatusSynced, "status mismatch")
	})

	t.Run("the server wins overlapping edits", func(t *testing.T) {
		ctx, db := setup(t)

		outcome, err := reconcile(ctx, map[string]interface{}{
			"key":      "AAAABBBB",
			"version":  float64(2),
			"itemType": "book",
			"title":    "remote title",
			"place":    "London",
		}, MergeRemote)
		if err != nil {
			t.Fatal(err)
		}

		assert.Equal(t, outcome, OutcomeMerged, "outcome mismatch")

		got, err := record.Load(db, "AAAABBBB")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, got.Fields["title"][0], "remote title", "the server edit must win")
	})

	t.Run("missing snapshot falls back to the remote data", func(t *testing.T) {
		ctx, db := setup(t)

		// simulate a store from before snapshots were kept
		database.MustExec(t, "removing the snapshot", db,
			"DELETE FROM metadata WHERE subject = ? AND predicate = ?", "AAAABBBB", consts.PredSyncData)

		outcome, err := reconcile(ctx, map[string]interface{}{
			"key":      "AAAABBBB",
			"version":  float64(2),
			"itemType": "book",
			"title":    "remote title",
			"place":    "Paris",
		}, MergeRemote)
		if err != nil {
			t.Fatal(err)
		}

		assert.Equal(t, outcome, OutcomeMerged, "outcome mismatch")

		got, err := record.Load(db, "AAAABBBB")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, got.Fields["title"][0], "remote title", "every remote field counts as changed")
	})
}

func TestReconcileMergeLocal(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	ctx := context.Ctx{DB: db}

	seedSynced(t, db, map[string]interface{}{
		"key":      "AAAABBBB",
		"version":  float64(1),
		"itemType": "book",
		"title":    "base title",
	})
	database.MustPut(t, db, "AAAABBBB", "title", "local title")
	if err := database.SetSyncStatus(db, "AAAABBBB", consts.StatusNew); err != nil {
		t.Fatal(err)
	}

	outcome, err := reconcile(ctx, map[string]interface{}{
		"key":     "AAAABBBB",
		"version": float64(2),
		"title":   "remote title",
	}, MergeLocal)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, outcome, OutcomeDeferredLocal, "outcome mismatch")

	got, _, err := database.Get(db, "AAAABBBB", "title")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got, "local title", "local data must stay untouched")

	status, _, err := database.GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, status, consts.StatusModified, "the subject must queue for push")
}

func TestReconcileMergeIgnore(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	ctx := context.Ctx{DB: db}

	seedSynced(t, db, map[string]interface{}{
		"key":      "AAAABBBB",
		"version":  float64(1),
		"itemType": "book",
		"title":    "base title",
	})
	database.MustPut(t, db, "AAAABBBB", "title", "local title")
	if err := database.SetSyncStatus(db, "AAAABBBB", consts.StatusModified); err != nil {
		t.Fatal(err)
	}

	outcome, err := reconcile(ctx, map[string]interface{}{
		"key":     "AAAABBBB",
		"version": float64(2),
		"title":   "remote title",
	}, MergeIgnore)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, outcome, OutcomeDeferredConflict, "outcome mismatch")

	got, _, err := database.Get(db, "AAAABBBB", "title")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got, "local title", "local data must stay untouched")

	status, _, err := database.GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, status, consts.StatusConflict, "the subject must park as a conflict")
}

func TestReconcileParkedConflict(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	ctx := context.Ctx{DB: db}

	database.MustPut(t, db, "AAAABBBB", "title", "local title")
	if err := database.SetSyncStatus(db, "AAAABBBB", consts.StatusConflict); err != nil {
		t.Fatal(err)
	}

	outcome, err := reconcile(ctx, map[string]interface{}{
		"key":     "AAAABBBB",
		"version": float64(3),
		"title":   "remote title",
	}, MergeRemote)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, outcome, OutcomeDeferredConflict, "outcome mismatch")

	got, _, err := database.Get(db, "AAAABBBB", "title")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got, "local title", "a parked conflict must stay untouched")
}

func TestReconcileMissingKey(t *testing.T) {
	ctx := context.Ctx{DB: database.InitTestMemoryDB(t)}

	_, err := reconcile(ctx, map[string]interface{}{"title": "no key"}, MergeRemote)
	assert.NotEqual(t, err, nil, "an object without a key must be rejected")
}

func TestConflictReport(t *testing.T) {
	db := database.InitTestMemoryDB(t)

	database.MustPut(t, db, "AAAABBBB", "title", "local title")

	report, err := conflictReport(db, "AAAABBBB", map[string]interface{}{
		"key":   "AAAABBBB",
		"title": "remote title",
	})
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, strings.Contains(report, "<<<<<<< Local"), true, "report must mark the local side")
	assert.Equal(t, strings.Contains(report, ">>>>>>> Server"), true, "report must mark the server side")
	assert.Equal(t, strings.Contains(report, "local title"), true, "report must show the local value")
	assert.Equal(t, strings.Contains(report, "remote title"), true, "report must show the remote value")
}
