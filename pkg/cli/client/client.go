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

// Package client provides interfaces for interacting with the Zotero API
// and the data structures for responses
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zotmirror/zotmirror/pkg/cli/consts"
	"github.com/zotmirror/zotmirror/pkg/cli/context"
	"github.com/zotmirror/zotmirror/pkg/cli/log"
	"golang.org/x/time/rate"
)

// apiVersion is the version of the Zotero API that the client speaks
const apiVersion = "3"

// HTTPError represents an HTTP error response from the server
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404 Not Found error
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsAuthFailure returns true if the error indicates missing or insufficient
// credentials
func (e *HTTPError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound checks if an error is a 404 response from the server
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsNotFound()
	}

	return false
}

// IsAuthFailure checks if an error is a 401 or 403 response from the server
func IsAuthFailure(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsAuthFailure()
	}

	return false
}

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 10
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 20
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting and the
// given request timeout
func NewRateLimitedHTTPClient(timeout time.Duration) *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func getHTTPClient(ctx context.Ctx) *http.Client {
	if ctx.HTTPClient != nil {
		return ctx.HTTPClient
	}

	return &http.Client{}
}

func getReq(ctx context.Ctx, method, path, body string) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s%s", ctx.APIEndpoint, path)
	req, err := http.NewRequest(method, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("Zotero-API-Version", apiVersion)

	if ctx.APIKey != "" {
		req.Header.Set("Zotero-API-Key", ctx.APIKey)
	}

	return req, nil
}

// checkRespErr checks if the given http response indicates an error. It
// returns a decoded error message if so.
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
}

// doReq does a http request to the given path in the api endpoint
func doReq(ctx context.Ctx, method, path, body string) (*http.Response, error) {
	req, err := getReq(ctx, method, path, body)
	if err != nil {
		return nil, errors.Wrap(err, "getting request")
	}

	log.Debug("HTTP %s %s\n", method, path)

	hc := getHTTPClient(ctx)
	res, err := hc.Do(req)
	if err != nil {
		return res, errors.Wrap(err, "making http request")
	}

	log.Debug("HTTP %d %s\n", res.StatusCode, res.Status)

	if err = checkRespErr(res); err != nil {
		return res, err
	}

	return res, nil
}

func groupPath(ctx context.Ctx, suffix string) string {
	return fmt.Sprintf("/groups/%s%s", ctx.LibraryID, suffix)
}

func decodeBody(res *http.Response, dest interface{}) error {
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return errors.Wrap(err, "decoding the response payload")
	}

	return nil
}

// getVersions fetches the key to version map of the objects changed since
// the given version.
func getVersions(ctx context.Ctx, objectPath string, since int) (map[string]int, error) {
	v := url.Values{}
	v.Set("format", "versions")
	v.Set("since", strconv.Itoa(since))

	path := groupPath(ctx, fmt.Sprintf("%s?%s", objectPath, v.Encode()))
	res, err := doReq(ctx, "GET", path, "")
	if err != nil {
		return nil, errors.Wrap(err, "making the request")
	}

	ret := map[string]int{}
	if err := decodeBody(res, &ret); err != nil {
		return nil, err
	}

	return ret, nil
}

// ItemVersions returns the versions of the items changed since the given
// version
func ItemVersions(ctx context.Ctx, since int) (map[string]int, error) {
	return getVersions(ctx, "/items", since)
}

// CollectionVersions returns the versions of the collections changed since
// the given version
func CollectionVersions(ctx context.Ctx, since int) (map[string]int, error) {
	return getVersions(ctx, "/collections", since)
}

// Object is a single fetched item or collection. Data carries the writable
// fields as returned by the server.
type Object struct {
	Key     string                 `json:"key"`
	Version int                    `json:"version"`
	Data    map[string]interface{} `json:"data"`
}

// chunkKeys breaks the given keys into chunks of at most the batch size
func chunkKeys(keys []string) [][]string {
	var ret [][]string

	for i := 0; i < len(keys); i += consts.BatchSize {
		end := i + consts.BatchSize
		if end > len(keys) {
			end = len(keys)
		}

		ret = append(ret, keys[i:end])
	}

	return ret
}

func fetchObjects(ctx context.Ctx, objectPath, keyParam string, keys []string) ([]Object, error) {
	var ret []Object

	for _, chunk := range chunkKeys(keys) {
		v := url.Values{}
		v.Set(keyParam, strings.Join(chunk, ","))

		path := groupPath(ctx, fmt.Sprintf("%s?%s", objectPath, v.Encode()))
		res, err := doReq(ctx, "GET", path, "")
		if err != nil {
			return nil, errors.Wrap(err, "making the request")
		}

		var objects []Object
		if err := decodeBody(res, &objects); err != nil {
			return nil, err
		}

		ret = append(ret, objects...)
	}

	return ret, nil
}

// FetchItems fetches the items with the given keys, batching the requests
// to respect the protocol limit
func FetchItems(ctx context.Ctx, keys []string) ([]Object, error) {
	return fetchObjects(ctx, "/items", "itemKey", keys)
}

// FetchCollections fetches the collections with the given keys, batching the
// requests to respect the protocol limit
func FetchCollections(ctx context.Ctx, keys []string) ([]Object, error) {
	return fetchObjects(ctx, "/collections", "collectionKey", keys)
}

// Deleted lists the keys of the objects deleted on the server
type Deleted struct {
	Items       []string `json:"items"`
	Collections []string `json:"collections"`
}

// DeletedSince returns the keys of the items and collections deleted since
// the given version
func DeletedSince(ctx context.Ctx, since int) (Deleted, error) {
	v := url.Values{}
	v.Set("since", strconv.Itoa(since))

	path := groupPath(ctx, fmt.Sprintf("/deleted?%s", v.Encode()))
	res, err := doReq(ctx, "GET", path, "")
	if err != nil {
		return Deleted{}, errors.Wrap(err, "making the request")
	}

	var ret Deleted
	if err := decodeBody(res, &ret); err != nil {
		return Deleted{}, err
	}

	return ret, nil
}

// WriteResp is the per-object outcome of a batch write
type WriteResp struct {
	Successful map[string]json.RawMessage `json:"successful"`
	Unchanged  map[string]string          `json:"unchanged"`
	Failed     map[string]json.RawMessage `json:"failed"`
}

// Ok reports whether the write landed any of the submitted objects
func (r WriteResp) Ok() bool {
	return len(r.Successful) > 0 || len(r.Unchanged) > 0
}

func writeObjects(ctx context.Ctx, objectPath string, data []map[string]interface{}) (WriteResp, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return WriteResp{}, errors.Wrap(err, "marshaling payload")
	}

	res, err := doReq(ctx, "POST", groupPath(ctx, objectPath), string(b))
	if err != nil {
		return WriteResp{}, errors.Wrap(err, "posting to the server")
	}

	var ret WriteResp
	if err := decodeBody(res, &ret); err != nil {
		return WriteResp{}, err
	}

	return ret, nil
}

// CreateItems uploads new items in a batch
func CreateItems(ctx context.Ctx, data []map[string]interface{}) (WriteResp, error) {
	return writeObjects(ctx, "/items", data)
}

// UpdateItems uploads modified items in a batch. Each object carries its
// last known version, letting the server reject stale writes.
func UpdateItems(ctx context.Ctx, data []map[string]interface{}) (WriteResp, error) {
	return writeObjects(ctx, "/items", data)
}

// CreateCollections uploads new collections in a batch
func CreateCollections(ctx context.Ctx, data []map[string]interface{}) (WriteResp, error) {
	return writeObjects(ctx, "/collections", data)
}

// UpdateCollections uploads modified collections in a batch
func UpdateCollections(ctx context.Ctx, data []map[string]interface{}) (WriteResp, error) {
	return writeObjects(ctx, "/collections", data)
}

// FetchFile downloads the attachment payload of an item
func FetchFile(ctx context.Ctx, key string) ([]byte, error) {
	path := groupPath(ctx, fmt.Sprintf("/items/%s/file", key))
	res, err := doReq(ctx, "GET", path, "")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	ret, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading the response body")
	}

	return ret, nil
}

// Group is the metadata of a group library
type Group struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Version     int    `json:"version"`
}

type groupResp struct {
	Data Group `json:"data"`
}

// FetchGroupMetadata fetches the metadata of the group library. This is not
// part of the per-object API and uses the bare group endpoint.
func FetchGroupMetadata(ctx context.Ctx) (Group, error) {
	res, err := doReq(ctx, "GET", fmt.Sprintf("/groups/%s", ctx.LibraryID), "")
	if err != nil {
		return Group{}, err
	}

	var ret groupResp
	if err := decodeBody(res, &ret); err != nil {
		return Group{}, err
	}

	return ret.Data, nil
}
