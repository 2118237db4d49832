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

package utils

import (
	"crypto/rand"
	"math/big"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// keyAlphabet is the set of characters used in Zotero object keys. It omits
// characters that are easily confused, such as 0, 1, I and O.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateKey returns a new 8-character object key compatible with the
// Zotero API. It belongs to the local editing surface alongside the graph
// queries: tools that create subjects in the store mint their keys here,
// mark them new in the ledger, and let the next sync pass push them. The
// engine itself only ever sees keys the server or an editor already made.
func GenerateKey() (string, error) {
	buf := make([]byte, 8)

	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyAlphabet))))
		if err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}

		buf[i] = keyAlphabet[n.Int64()]
	}

	return string(buf), nil
}

// GenerateUUID returns a uuid v4 in string
func GenerateUUID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generating uuid")
	}

	return u.String(), nil
}

// FileExists checks if the file exists at the given path
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting file info for %s", path)
	}

	return true, nil
}
