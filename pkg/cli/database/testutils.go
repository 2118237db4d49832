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
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/utils"
)

// MustScan scans the given row and fails a test in case of any errors
func MustScan(t *testing.T, message string, row *sql.Row, args ...interface{}) {
	t.Helper()

	err := row.Scan(args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "scanning a row"), message))
	}
}

// MustExec executes the given SQL query and fails a test if an error occurs
func MustExec(t *testing.T, message string, h Handle, query string, args ...interface{}) sql.Result {
	t.Helper()

	result, err := h.Exec(query, args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "executing sql"), message))
	}

	return result
}

// MustPut stores a singleton fact and fails a test if an error occurs
func MustPut(t *testing.T, h Handle, subject, predicate, object string) {
	t.Helper()

	if err := Put(h, subject, predicate, object); err != nil {
		t.Fatal(errors.Wrap(err, "putting a fact"))
	}
}

// MustInsertFact appends a fact and fails a test if an error occurs
func MustInsertFact(t *testing.T, h Handle, subject, predicate, object string) {
	t.Helper()

	if err := InsertFact(h, subject, predicate, object); err != nil {
		t.Fatal(errors.Wrap(err, "inserting a fact"))
	}
}

// InitTestMemoryDB initializes an in-memory test database with the schema.
func InitTestMemoryDB(t *testing.T) *DB {
	t.Helper()

	uuid, err := utils.GenerateUUID()
	if err != nil {
		t.Fatal(errors.Wrap(err, "generating a name for the test database"))
	}
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid)

	db, err := Open(dbName)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening in-memory database"))
	}

	if err := InitSchema(db); err != nil {
		t.Fatal(errors.Wrap(err, "initializing schema"))
	}

	t.Cleanup(func() { db.Close() })
	return db
}
