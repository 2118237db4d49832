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
	"database/sql"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
)

// Triple is a single (subject, predicate, object) fact with a text object.
// Binary objects are read and written through GetBlob and PutBlob and never
// appear in a Triple.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Get returns the text value for the given subject and predicate. The second
// return value is false if no such fact exists.
func Get(h Handle, subject, predicate string) (string, bool, error) {
	var ret string

	err := h.QueryRow("SELECT object FROM metadata WHERE subject = ? AND predicate = ? AND typeof(object) != 'blob'", subject, predicate).Scan(&ret)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "querying %s %s", subject, predicate)
	}

	return ret, true, nil
}

// GetBlob returns the binary value for the given subject and predicate. The
// second return value is false if no such fact exists.
func GetBlob(h Handle, subject, predicate string) ([]byte, bool, error) {
	var ret []byte

	err := h.QueryRow("SELECT object FROM metadata WHERE subject = ? AND predicate = ? AND typeof(object) = 'blob'", subject, predicate).Scan(&ret)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "querying blob %s %s", subject, predicate)
	}

	return ret, true, nil
}

// GetAll returns all non-binary facts for the given subject. Blobs are left
// on disk so that large payloads are never materialized by accident.
func GetAll(h Handle, subject string) ([]Triple, error) {
	rows, err := h.Query("SELECT predicate, object FROM metadata WHERE subject = ? AND typeof(object) != 'blob'", subject)
	if err != nil {
		return nil, errors.Wrapf(err, "querying facts for %s", subject)
	}
	defer rows.Close()

	var ret []Triple
	for rows.Next() {
		t := Triple{Subject: subject}
		if err := rows.Scan(&t.Predicate, &t.Object); err != nil {
			return nil, errors.Wrap(err, "scanning a fact")
		}

		ret = append(ret, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating facts")
	}

	return ret, nil
}

// Query returns the subjects whose value for the given predicate matches the
// pattern. A '*' in the pattern matches any substring; otherwise the match
// is exact.
func Query(h Handle, predicate, pattern string) ([]string, error) {
	var rows *sql.Rows
	var err error

	if strings.Contains(pattern, "*") {
		like := strings.ReplaceAll(pattern, "*", "%")
		rows, err = h.Query("SELECT subject FROM metadata WHERE predicate = ? AND object LIKE ? AND typeof(object) != 'blob'", predicate, like)
	} else {
		rows, err = h.Query("SELECT subject FROM metadata WHERE predicate = ? AND object = ? AND typeof(object) != 'blob'", predicate, pattern)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "querying subjects for %s", predicate)
	}
	defer rows.Close()

	return scanSubjects(rows)
}

// Subjects returns all subjects that have a fact with the given predicate.
func Subjects(h Handle, predicate string) ([]string, error) {
	rows, err := h.Query("SELECT DISTINCT subject FROM metadata WHERE predicate = ?", predicate)
	if err != nil {
		return nil, errors.Wrapf(err, "querying subjects with %s", predicate)
	}
	defer rows.Close()

	return scanSubjects(rows)
}

// DistinctValues returns the distinct non-binary values stored for a
// predicate, sorted case-insensitively.
func DistinctValues(h Handle, predicate string) ([]string, error) {
	rows, err := h.Query("SELECT DISTINCT object FROM metadata WHERE predicate = ? AND typeof(object) != 'blob'", predicate)
	if err != nil {
		return nil, errors.Wrapf(err, "querying values for %s", predicate)
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scanning a value")
		}

		ret = append(ret, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating values")
	}

	sort.SliceStable(ret, func(i, j int) bool {
		return strings.ToLower(ret[i]) < strings.ToLower(ret[j])
	})

	return ret, nil
}

// inOwnTx runs fn within a fresh transaction on the given connection
func inOwnTx(db *DB, fn func(tx *Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Put stores a singleton fact, replacing any existing values for the
// subject and predicate. It is used for fields that hold a single value,
// such as version or name. The clear and the insert must land together;
// when handed a bare *DB, Put runs them in its own transaction.
func Put(h Handle, subject, predicate, object string) error {
	if db, ok := h.(*DB); ok {
		return inOwnTx(db, func(tx *Tx) error {
			return Put(tx, subject, predicate, object)
		})
	}

	if _, err := h.Exec("DELETE FROM metadata WHERE subject = ? AND predicate = ? AND typeof(object) != 'blob'", subject, predicate); err != nil {
		return errors.Wrapf(err, "clearing %s %s", subject, predicate)
	}
	if _, err := h.Exec("INSERT INTO metadata (subject, predicate, object) VALUES (?, ?, ?)", subject, predicate, object); err != nil {
		return errors.Wrapf(err, "inserting %s %s", subject, predicate)
	}

	return nil
}

// InsertFact appends a fact without touching existing values for the same
// subject and predicate. It is used for multi-valued fields and is never
// deduplicated.
func InsertFact(h Handle, subject, predicate, object string) error {
	if _, err := h.Exec("INSERT INTO metadata (subject, predicate, object) VALUES (?, ?, ?)", subject, predicate, object); err != nil {
		return errors.Wrapf(err, "inserting %s %s", subject, predicate)
	}

	return nil
}

// PutBlob stores a binary fact, replacing any existing blob for the subject
// and predicate. Like Put, it scopes its own transaction when handed a bare
// *DB.
func PutBlob(h Handle, subject, predicate string, object []byte) error {
	if db, ok := h.(*DB); ok {
		return inOwnTx(db, func(tx *Tx) error {
			return PutBlob(tx, subject, predicate, object)
		})
	}

	if _, err := h.Exec("DELETE FROM metadata WHERE subject = ? AND predicate = ? AND typeof(object) = 'blob'", subject, predicate); err != nil {
		return errors.Wrapf(err, "clearing blob %s %s", subject, predicate)
	}
	if _, err := h.Exec("INSERT INTO metadata (subject, predicate, object) VALUES (?, ?, ?)", subject, predicate, object); err != nil {
		return errors.Wrapf(err, "inserting blob %s %s", subject, predicate)
	}

	return nil
}

// DeleteSubject removes the facts for a subject. Binary payloads survive
// unless includeBinary is set, so that attachment files and thumbnails are
// preserved across metadata rewrites.
func DeleteSubject(h Handle, subject string, includeBinary bool) error {
	var err error
	if includeBinary {
		_, err = h.Exec("DELETE FROM metadata WHERE subject = ?", subject)
	} else {
		_, err = h.Exec("DELETE FROM metadata WHERE subject = ? AND typeof(object) != 'blob'", subject)
	}
	if err != nil {
		return errors.Wrapf(err, "deleting facts for %s", subject)
	}

	return nil
}

// HighestVersion returns the maximum remote version recorded in the store.
// It is the high-water mark for incremental queries against the server.
func HighestVersion(h Handle) (int, error) {
	var ret sql.NullInt64

	err := h.QueryRow("SELECT max(CAST(object AS INTEGER)) FROM metadata WHERE predicate = ? AND typeof(object) != 'blob'", consts.PredVersion).Scan(&ret)
	if err != nil {
		return 0, errors.Wrap(err, "querying the highest version")
	}

	return int(ret.Int64), nil
}

// GetSyncStatus returns the sync status of a subject. The second return
// value is false when no status fact exists, meaning the subject has not
// been evaluated for sync yet.
func GetSyncStatus(h Handle, subject string) (string, bool, error) {
	return Get(h, subject, consts.PredSyncStatus)
}

// SetSyncStatus stamps the sync status of a subject.
func SetSyncStatus(h Handle, subject, status string) error {
	return Put(h, subject, consts.PredSyncStatus, status)
}

func scanSubjects(rows *sql.Rows) ([]string, error) {
	var ret []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "scanning a subject")
		}

		ret = append(ret, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating subjects")
	}

	return ret, nil
}
