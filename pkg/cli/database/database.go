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

// Package database provides the local triple store. Each library is mirrored
// into its own sqlite database holding a single metadata relation of
// (subject, predicate, object) facts.
package database

import (
	"database/sql"
	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Handle is the common interface of DB and Tx. Store primitives accept a
// Handle so that callers can scope any unit of work in a transaction.
type Handle interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// DB is a database connection to a library store
type DB struct {
	*sql.DB
}

// Tx is an in-progress transaction on a library store
type Tx struct {
	*sql.Tx
}

// Open opens the database connection at the given path
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)

	if err != nil {
		return nil, errors.Wrapf(err, "opening database at %s", path)
	}

	return &DB{db}, nil
}

// Begin begins a transaction
func (db *DB) Begin() (*Tx, error) {
	tx, err := db.DB.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "beginning a transaction")
	}

	return &Tx{tx}, nil
}

// InitSchema creates the metadata relation and its indexes if they are
// missing. It is safe to call on every run.
func InitSchema(h Handle) error {
	if _, err := h.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "running schema sql")
	}

	return nil
}
