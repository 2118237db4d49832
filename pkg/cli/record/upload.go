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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
)

// uploadFields lists the scalar fields accepted by the Zotero write API.
// Fields outside this set are kept in the local store but never uploaded,
// because the server rejects payloads with unrecognized fields.
var uploadFields = map[string]bool{}

func init() {
	fields := []string{
		"abstractNote", "accessDate", "applicationNumber",
		"archive", "archiveID", "archiveLocation", "artworkMedium",
		"artworkSize", "assignee", "audioFileType",
		"audioRecordingFormat", "billNumber", "blogTitle", "bookTitle",
		"callNumber", "caseName", "citationKey", "code", "codeNumber",
		"codePages", "codeVolume", "committee", "company",
		"conferenceName", "country", "court", "date", "dateAdded",
		"dateDecided", "dateEnacted", "dateModified", "dictionaryTitle",
		"distributor", "docketNumber", "documentNumber", "DOI",
		"edition", "encyclopediaTitle", "episodeNumber", "extra",
		"filingDate", "firstPage", "forumTitle", "genre", "history",
		"institution", "interviewMedium", "ISBN", "ISSN", "issue",
		"issueDate", "issuingAuthority", "itemType",
		"journalAbbreviation", "label", "language", "legalStatus",
		"legislativeBody", "letterType", "libraryCatalog",
		"manuscriptType", "mapType", "meetingName", "nameOfAct",
		"network", "number", "numberOfVolumes", "numPages", "pages",
		"patentNumber", "place", "postType", "presentationType",
		"priorityNumbers", "proceedingsTitle", "programmingLanguage",
		"programTitle", "publicationTitle", "publicLawNumber",
		"publisher", "references", "reporter", "reporterVolume",
		"reportNumber", "reportType", "repository", "rights",
		"runningTime", "scale", "section", "series", "seriesNumber",
		"seriesText", "seriesTitle", "session", "shortTitle", "studio",
		"subject", "system", "thesisType", "title", "university", "url",
		"versionNumber", "videoRecordingFormat", "volume",
		"websiteTitle", "websiteType",
		// additional data fields returned by the Zotero API
		"key", "version", "parentItem", "linkMode",
		"annotationType", "annotationAuthorName", "annotationText",
		"annotationComment", "annotationColor", "annotationPageLabel",
		"annotationSortIndex", "annotationPosition", "note",
		// collection and library fields
		"name", "description",
	}

	for _, f := range fields {
		uploadFields[f] = true
	}
}

// Upload maps a record into the representation expected by the Zotero write
// API. Collections must not carry their itemType back to the server, since
// the collection schema does not accept it.
func Upload(r Record) map[string]interface{} {
	data := map[string]interface{}{
		"key":     r.Key,
		"version": r.Version,
	}

	if r.ItemType != "" && r.Kind != KindCollection {
		data["itemType"] = r.ItemType
	}

	if len(r.Creators) > 0 {
		creators := make([]interface{}, 0, len(r.Creators))
		for _, c := range r.Creators {
			entry := map[string]interface{}{"creatorType": c.Role}
			if last, first, ok := splitName(c.Name); ok {
				entry["lastName"] = last
				entry["firstName"] = first
			} else {
				entry["name"] = c.Name
			}
			creators = append(creators, entry)
		}
		data["creators"] = creators
	}

	if len(r.Tags) > 0 {
		tags := make([]interface{}, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, map[string]interface{}{"tag": t})
		}
		data["tags"] = tags
	}

	if len(r.Collections) > 0 {
		collections := make([]interface{}, 0, len(r.Collections))
		for _, c := range r.Collections {
			collections = append(collections, c)
		}
		data["collections"] = collections
	}

	for predicate, values := range r.Fields {
		if predicate == "key" || predicate == "version" || !uploadFields[predicate] {
			continue
		}

		data[predicate] = values[0]
	}

	return data
}

// EncodeUpload serializes an upload representation canonically. Object keys
// marshal in sorted order, so equal representations encode identically.
func EncodeUpload(data map[string]interface{}) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "marshalling upload data")
	}

	return string(b), nil
}

// FromAPI builds a record from the data object of a fetched item or
// collection. Fragments that cannot be interpreted are skipped rather than
// failing the whole record.
func FromAPI(data map[string]interface{}) (Record, error) {
	key, ok := data["key"].(string)
	if !ok || len(key) != consts.KeyLen {
		return Record{}, errors.Errorf("invalid key %v", data["key"])
	}

	itemType, _ := data["itemType"].(string)

	ret := Record{
		Key:      key,
		Kind:     kindOf(itemType),
		ItemType: itemType,
		Fields:   map[string][]string{},
	}

	for k, v := range data {
		switch k {
		case "key", "itemType", "relations":
		case "version":
			ret.Version = toInt(v)
		case "creators":
			entries, ok := v.([]interface{})
			if !ok {
				continue
			}
			for _, e := range entries {
				c, ok := toCreator(e)
				if !ok {
					continue
				}
				ret.Creators = append(ret.Creators, c)
			}
		case "tags":
			entries, ok := v.([]interface{})
			if !ok {
				continue
			}
			for _, e := range entries {
				entry, ok := e.(map[string]interface{})
				if !ok {
					continue
				}
				if tag, ok := entry["tag"].(string); ok {
					ret.Tags = append(ret.Tags, tag)
				}
			}
		case "collections":
			entries, ok := v.([]interface{})
			if !ok {
				continue
			}
			for _, e := range entries {
				if c, ok := e.(string); ok {
					ret.Collections = append(ret.Collections, c)
				}
			}
		default:
			s, ok := toScalar(v)
			if !ok {
				continue
			}
			ret.Fields[k] = append(ret.Fields[k], s)
		}
	}

	return ret, nil
}

func toCreator(v interface{}) (Creator, bool) {
	entry, ok := v.(map[string]interface{})
	if !ok {
		return Creator{}, false
	}

	role, ok := entry["creatorType"].(string)
	if !ok {
		return Creator{}, false
	}

	if name, ok := entry["name"].(string); ok {
		return Creator{Role: role, Name: name}, true
	}

	last, _ := entry["lastName"].(string)
	first, _ := entry["firstName"].(string)
	return Creator{Role: role, Name: fmt.Sprintf("%s, %s", last, first)}, true
}

func splitName(name string) (last, first string, ok bool) {
	idx := strings.Index(name, ", ")
	if idx < 0 {
		return "", "", false
	}

	return name[:idx], name[idx+2:], true
}

func toScalar(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func toInt(v interface{}) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
