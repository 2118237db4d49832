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

package record

import (
	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/database"
)

// Children returns the keys of the items whose parentItem is the given key.
func Children(h database.Handle, key string) ([]string, error) {
	return database.Query(h, consts.PredParentItem, key)
}

// Ancestors returns the chain of parent items for the given key, from the
// topmost ancestor down to the key itself. The walk is iterative and stops
// at a subject with no parent, or upon revisiting a subject.
func Ancestors(h database.Handle, key string) ([]string, error) {
	keys := []string{key}
	seen := map[string]bool{key: true}

	for {
		parent, ok, err := database.Get(h, keys[0], consts.PredParentItem)
		if err != nil {
			return nil, errors.Wrapf(err, "querying the parent of %s", keys[0])
		}
		if !ok || seen[parent] {
			return keys, nil
		}

		keys = append([]string{parent}, keys...)
		seen[parent] = true
	}
}

// Collections returns the keys of all collection records in the store.
func Collections(h database.Handle) ([]string, error) {
	return database.Query(h, consts.PredItemType, consts.ItemTypeCollection)
}

// CollectionMembers returns a page of the keys that belong to the given
// collection.
func CollectionMembers(h database.Handle, key string, offset, limit int) ([]string, error) {
	rows, err := h.Query("SELECT subject FROM metadata WHERE predicate = ? AND object = ? LIMIT ? OFFSET ?", consts.PredCollection, key, limit, offset)
	if err != nil {
		return nil, errors.Wrapf(err, "querying members of %s", key)
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "scanning a member")
		}
		ret = append(ret, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating members")
	}

	return ret, nil
}

// CollectionMemberCount returns the number of keys that belong to the given
// collection.
func CollectionMemberCount(h database.Handle, key string) (int, error) {
	var ret int

	err := h.QueryRow("SELECT count(*) FROM metadata WHERE predicate = ? AND object = ?", consts.PredCollection, key).Scan(&ret)
	if err != nil {
		return 0, errors.Wrapf(err, "counting members of %s", key)
	}

	return ret, nil
}

// LoadLibrary loads the library root record, if the store has one.
func LoadLibrary(h database.Handle) (Record, bool, error) {
	keys, err := database.Query(h, consts.PredItemType, consts.ItemTypeLibrary)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "querying the library record")
	}
	if len(keys) == 0 {
		return Record{}, false, nil
	}

	r, err := Load(h, keys[0])
	if err != nil {
		return Record{}, false, errors.Wrap(err, "loading the library record")
	}

	return r, true, nil
}
