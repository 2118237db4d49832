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

// Package consts provides definitions of constants
package consts

var (
	// DirName is the name of the directory containing zotmirror files
	DirName = "zotmirror"
	// ConfigFilename is the name of the config file
	ConfigFilename = "zotmirrorrc"

	// ControlPrefix marks predicates that hold bookkeeping data rather than
	// bibliographic fields. Control predicates never round-trip to the server.
	ControlPrefix = "."
	// PredSyncStatus is the control predicate holding the per-subject sync status
	PredSyncStatus = ".zotero-sync-status"
	// PredSyncData is the control predicate holding the pristine snapshot of the
	// record as last seen on the server, used as the base for three-way merges
	PredSyncData = ".zotero-sync-data"
	// PredLastSync is the control predicate on the library record holding the
	// wall time of the last completed sync pass
	PredLastSync = ".zotero-last-sync"

	// PredItemType is the predicate holding the type of a record
	PredItemType = "itemType"
	// PredVersion is the predicate holding the remote version of a record
	PredVersion = "version"
	// PredFile is the predicate holding a binary attachment payload
	PredFile = "file"
	// PredThumb is the predicate holding a thumbnail payload
	PredThumb = "thumb"
	// PredPreview is the predicate holding a preview image payload
	PredPreview = "preview"
	// PredTag is the predicate holding a tag
	PredTag = "tag"
	// PredCollection is the predicate holding a parent collection key
	PredCollection = "collection"
	// PredParentItem is the predicate holding the parent item key
	PredParentItem = "parentItem"
	// PredLinkMode is the predicate describing how an attachment stores its payload
	PredLinkMode = "linkMode"

	// ItemTypeCollection is the itemType of a collection record
	ItemTypeCollection = "collection"
	// ItemTypeLibrary is the itemType of the library root record
	ItemTypeLibrary = "library"
	// ItemTypeAttachment is the itemType of an attachment record
	ItemTypeAttachment = "attachment"

	// StatusNew marks a subject created locally and never pushed
	StatusNew = "new"
	// StatusModified marks a subject edited locally since the last sync
	StatusModified = "modified"
	// StatusSynced marks a subject reconciled with the server
	StatusSynced = "synced"
	// StatusConflict marks a subject with deferred conflicting edits
	StatusConflict = "conflict"
)

// KeyLen is the length of every subject key, shared with the Zotero API.
const KeyLen = 8

// BatchSize is the maximum number of keys per remote fetch request. Larger
// batches make the server respond with 414 Request-URI Too Long.
const BatchSize = 50

// CreatorTypes lists the predicates that represent creator roles. Values for
// these predicates are always list-valued.
var CreatorTypes = []string{
	"artist", "attorneyAgent", "author", "bookAuthor",
	"cartographer", "castMember", "commenter", "composer",
	"contributor", "cosponsor", "counsel", "director", "editor",
	"guest", "interviewee", "interviewer", "inventor", "performer",
	"podcaster", "presenter", "producer", "programmer", "recipient",
	"reviewedAuthor", "scriptwriter", "seriesEditor", "sponsor",
	"translator", "wordsBy",
}
