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

// Package record reconstructs typed records from the flat triples of a
// library store and maps them back into triples and into the representation
// expected by the Zotero write API.
package record

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/database"
)

// Kind discriminates the variants of a record
type Kind int

const (
	// KindItem is a bibliographic item, including notes and attachments
	KindItem Kind = iota
	// KindCollection is a collection of items
	KindCollection
	// KindLibrary is the library root record
	KindLibrary
)

// Creator is a single creator entry. Name holds the stored form, which is
// either a single name or "lastName, firstName".
type Creator struct {
	Role string
	Name string
}

// Record is a typed view over all triples sharing a subject. Fields holds
// the predicates that are not modeled explicitly, so that unknown fields
// survive a round trip through the store.
type Record struct {
	Key         string
	Kind        Kind
	ItemType    string
	Version     int
	Creators    []Creator
	Tags        []string
	Collections []string
	Fields      map[string][]string
}

// ignoreFields are predicates that are not loaded into records. They hold
// payloads or derived data that the record layer never needs in memory.
var ignoreFields = map[string]bool{
	consts.PredFile:       true,
	consts.PredThumb:      true,
	consts.PredPreview:    true,
	"annotationSortIndex": true,
	"annotationColor":     true,
	"annotationPosition":  true,
}

var creatorTypes = map[string]bool{}

func init() {
	for _, t := range consts.CreatorTypes {
		creatorTypes[t] = true
	}
}

// Load reconstructs the record for the given subject. A subject with no
// itemType fact loads as an item.
func Load(h database.Handle, key string) (Record, error) {
	itemType, _, err := database.Get(h, key, consts.PredItemType)
	if err != nil {
		return Record{}, errors.Wrapf(err, "querying the type of %s", key)
	}

	ret := Record{
		Key:      key,
		Kind:     kindOf(itemType),
		ItemType: itemType,
		Fields:   map[string][]string{},
	}

	triples, err := database.GetAll(h, key)
	if err != nil {
		return Record{}, errors.Wrapf(err, "querying facts for %s", key)
	}

	for _, t := range triples {
		switch {
		case strings.HasPrefix(t.Predicate, consts.ControlPrefix):
			// bookkeeping data
		case ignoreFields[t.Predicate]:
		case t.Predicate == consts.PredItemType:
		case t.Predicate == consts.PredVersion:
			v, err := strconv.Atoi(t.Object)
			if err != nil {
				return Record{}, errors.Wrapf(err, "parsing the version of %s", key)
			}
			ret.Version = v
		case creatorTypes[t.Predicate]:
			ret.Creators = append(ret.Creators, Creator{Role: t.Predicate, Name: t.Object})
		case t.Predicate == consts.PredTag:
			ret.Tags = append(ret.Tags, t.Object)
		case t.Predicate == consts.PredCollection:
			ret.Collections = append(ret.Collections, t.Object)
		default:
			// a second value for a scalar field promotes it to a list
			ret.Fields[t.Predicate] = append(ret.Fields[t.Predicate], t.Object)
		}
	}

	return ret, nil
}

// ToTriples maps a record back into triples, appending a pristine snapshot
// control triple holding the canonical encoding of the record. The snapshot
// is the common ancestor for three-way merges during conflict resolution.
func ToTriples(r Record) ([]database.Triple, error) {
	var ret []database.Triple

	add := func(predicate, object string) {
		ret = append(ret, database.Triple{Subject: r.Key, Predicate: predicate, Object: object})
	}

	if r.ItemType != "" {
		add(consts.PredItemType, r.ItemType)
	}
	add(consts.PredVersion, strconv.Itoa(r.Version))

	for _, c := range r.Creators {
		add(c.Role, c.Name)
	}
	for _, t := range r.Tags {
		add(consts.PredTag, t)
	}
	for _, c := range r.Collections {
		add(consts.PredCollection, c)
	}
	for predicate, values := range r.Fields {
		for _, v := range values {
			add(predicate, v)
		}
	}

	pristine, err := EncodeUpload(Upload(r))
	if err != nil {
		return nil, errors.Wrapf(err, "encoding the snapshot of %s", r.Key)
	}
	add(consts.PredSyncData, pristine)

	return ret, nil
}

// File returns the binary attachment payload of the record, if any. Only
// attachment items carry files.
func (r Record) File(h database.Handle) ([]byte, bool, error) {
	if r.ItemType != consts.ItemTypeAttachment {
		return nil, false, nil
	}

	return database.GetBlob(h, r.Key, consts.PredFile)
}

func kindOf(itemType string) Kind {
	switch itemType {
	case consts.ItemTypeCollection:
		return KindCollection
	case consts.ItemTypeLibrary:
		return KindLibrary
	default:
		return KindItem
	}
}
