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

package database

import (
	"testing"

	"github.com/zotmirror/zotmirror/pkg/assert"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
)

func TestPut(t *testing.T) {
	db := InitTestMemoryDB(t)

	// set up
	MustPut(t, db, "AAAABBBB", "title", "old title")

	// execute
	if err := Put(db, "AAAABBBB", "title", "new title"); err != nil {
		t.Fatal(err)
	}

	// test
	got, ok, err := Get(db, "AAAABBBB", "title")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "title presence mismatch")
	assert.Equal(t, got, "new title", "title mismatch")

	var count int
	MustScan(t, "counting title facts",
		db.QueryRow("SELECT count(*) FROM metadata WHERE subject = ? AND predicate = ?", "AAAABBBB", "title"), &count)
	assert.Equal(t, count, 1, "fact count mismatch")
}

func TestPutOnConnectionIsAtomic(t *testing.T) {
	db := InitTestMemoryDB(t)

	// a rejected insert must roll back the whole rewrite, not leave the
	// cleared half behind
	err := Put(db, "BAD", "title", "x")
	assert.NotEqual(t, err, nil, "short subject must be rejected")

	var count int
	MustScan(t, "counting facts",
		db.QueryRow("SELECT count(*) FROM metadata"), &count)
	assert.Equal(t, count, 0, "a failed rewrite must leave nothing behind")
}

func TestPutInTransaction(t *testing.T) {
	db := InitTestMemoryDB(t)

	MustPut(t, db, "AAAABBBB", consts.PredSyncStatus, consts.StatusModified)

	// a rewrite inside a caller's transaction must follow its fate
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := SetSyncStatus(tx, "AAAABBBB", consts.StatusSynced); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	got, _, err := GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got, consts.StatusModified, "a rolled back stamp must not stick")

	tx, err = db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := SetSyncStatus(tx, "AAAABBBB", consts.StatusSynced); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, _, err = GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got, consts.StatusSynced, "a committed stamp must stick")
}

func TestPutPreservesBlob(t *testing.T) {
	db := InitTestMemoryDB(t)

	if err := PutBlob(db, "AAAABBBB", consts.PredFile, []byte{0xde, 0xad}); err != nil {
		t.Fatal(err)
	}

	// a metadata rewrite must not touch the binary payload under the same
	// predicate name
	if err := Put(db, "AAAABBBB", consts.PredFile, "note.pdf"); err != nil {
		t.Fatal(err)
	}

	blob, ok, err := GetBlob(db, "AAAABBBB", consts.PredFile)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "blob presence mismatch")
	assert.DeepEqual(t, blob, []byte{0xde, 0xad}, "blob mismatch")

	got, ok, err := Get(db, "AAAABBBB", consts.PredFile)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "text presence mismatch")
	assert.Equal(t, got, "note.pdf", "text mismatch")
}

func TestInsertFactAppends(t *testing.T) {
	db := InitTestMemoryDB(t)

	MustInsertFact(t, db, "AAAABBBB", consts.PredTag, "to-read")
	MustInsertFact(t, db, "AAAABBBB", consts.PredTag, "physics")

	triples, err := GetAll(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(triples), 2, "triple count mismatch")
}

func TestGetExcludesBlob(t *testing.T) {
	db := InitTestMemoryDB(t)

	if err := PutBlob(db, "AAAABBBB", consts.PredFile, []byte{0x01}); err != nil {
		t.Fatal(err)
	}

	_, ok, err := Get(db, "AAAABBBB", consts.PredFile)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, false, "blob must not surface as text")
}

func TestSubjectKeyLengthEnforced(t *testing.T) {
	db := InitTestMemoryDB(t)

	err := InsertFact(db, "SHORT", "title", "x")
	assert.NotEqual(t, err, nil, "short subject must be rejected")
}

func TestQuery(t *testing.T) {
	db := InitTestMemoryDB(t)

	MustInsertFact(t, db, "AAAABBBB", "title", "The Selfish Gene")
	MustInsertFact(t, db, "CCCCDDDD", "title", "The Blind Watchmaker")
	MustInsertFact(t, db, "EEEEFFFF", "author", "Dawkins, Richard")

	t.Run("exact", func(t *testing.T) {
		got, err := Query(db, "title", "The Selfish Gene")
		if err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, got, []string{"AAAABBBB"}, "subjects mismatch")
	})

	t.Run("wildcard", func(t *testing.T) {
		got, err := Query(db, "title", "The*")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, len(got), 2, "subject count mismatch")
	})

	t.Run("no match", func(t *testing.T) {
		got, err := Query(db, "title", "Unwritten")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, len(got), 0, "subject count mismatch")
	})
}

func TestDistinctValues(t *testing.T) {
	db := InitTestMemoryDB(t)

	MustInsertFact(t, db, "AAAABBBB", consts.PredTag, "biology")
	MustInsertFact(t, db, "CCCCDDDD", consts.PredTag, "Astronomy")
	MustInsertFact(t, db, "EEEEFFFF", consts.PredTag, "biology")

	got, err := DistinctValues(db, consts.PredTag)
	if err != nil {
		t.Fatal(err)
	}

	assert.DeepEqual(t, got, []string{"Astronomy", "biology"}, "values mismatch")
}

func TestDeleteSubject(t *testing.T) {
	db := InitTestMemoryDB(t)

	setup := func(t *testing.T) {
		MustPut(t, db, "AAAABBBB", "title", "a title")
		MustPut(t, db, "AAAABBBB", consts.PredSyncStatus, consts.StatusSynced)
		if err := PutBlob(db, "AAAABBBB", consts.PredFile, []byte{0x01}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("metadata only", func(t *testing.T) {
		setup(t)

		if err := DeleteSubject(db, "AAAABBBB", false); err != nil {
			t.Fatal(err)
		}

		triples, err := GetAll(db, "AAAABBBB")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, len(triples), 0, "text triples must be gone")

		_, ok, err := GetBlob(db, "AAAABBBB", consts.PredFile)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, ok, true, "blob must survive")
	})

	t.Run("including binary", func(t *testing.T) {
		setup(t)

		if err := DeleteSubject(db, "AAAABBBB", true); err != nil {
			t.Fatal(err)
		}

		var count int
		MustScan(t, "counting remaining facts",
			db.QueryRow("SELECT count(*) FROM metadata WHERE subject = ?", "AAAABBBB"), &count)
		assert.Equal(t, count, 0, "no facts may remain")
	})
}

func TestHighestVersion(t *testing.T) {
	db := InitTestMemoryDB(t)

	t.Run("empty store", func(t *testing.T) {
		got, err := HighestVersion(db)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, got, 0, "version mismatch")
	})

	t.Run("numeric comparison", func(t *testing.T) {
		// "9" sorts above "10" textually, so the max has to be numeric
		MustPut(t, db, "AAAABBBB", consts.PredVersion, "9")
		MustPut(t, db, "CCCCDDDD", consts.PredVersion, "10")

		got, err := HighestVersion(db)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, got, 10, "version mismatch")
	})
}

func TestSyncStatus(t *testing.T) {
	db := InitTestMemoryDB(t)

	_, ok, err := GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, false, "status presence mismatch")

	if err := SetSyncStatus(db, "AAAABBBB", consts.StatusNew); err != nil {
		t.Fatal(err)
	}
	if err := SetSyncStatus(db, "AAAABBBB", consts.StatusSynced); err != nil {
		t.Fatal(err)
	}

	got, ok, err := GetSyncStatus(db, "AAAABBBB")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "status presence mismatch")
	assert.Equal(t, got, consts.StatusSynced, "status mismatch")
}
