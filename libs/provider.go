/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package libs provides library sources for bindings that declare
// "requires" and some optional host functions for the runtime.
package libs

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Provider resolves a library name into library source code.
type Provider func(ctx context.Context, name string) (string, error)

// DefaultProvider reads file:// libraries relative to the current
// directory and fetches http:// and https:// libraries.
var DefaultProvider = MakeFileProvider(".")

// HTTPTimeout limits library fetches done by providers from
// MakeFileProvider.
var HTTPTimeout = 10 * time.Second

// NewHTTPClient makes the client used to fetch remote libraries.
//
// The client keeps cookies (scoped by public suffix) so that a
// library server that hands out a session cookie on the first fetch
// sees it on subsequent fetches.
func NewHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Jar:     jar,
		Timeout: HTTPTimeout,
	}, nil
}

// MakeFileProvider makes a Provider that supports (barely) names
// that are URLs with protocols of "file", "http", and "https".
// There currently is no additional control when using HTTP/HTTPS.
func MakeFileProvider(dir string) Provider {
	var (
		once      sync.Once
		client    *http.Client
		clientErr error
	)
	return func(ctx context.Context, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean(parts[1])
			if strings.HasPrefix(filename, "..") || filepath.IsAbs(filename) {
				return "", fmt.Errorf("library '%s' is outside '%s'", name, dir)
			}
			bs, err := ioutil.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			once.Do(func() {
				client, clientErr = NewHTTPClient()
			})
			if clientErr != nil {
				return "", clientErr
			}
			return fetch(ctx, client, name)
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

func fetch(ctx context.Context, client *http.Client, u string) (string, error) {
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		bs, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(bs), nil
	default:
		return "", fmt.Errorf("library fetch status %s %d",
			resp.Status, resp.StatusCode)
	}
}

// MakeMapProvider makes a Provider that just looks up names in the
// given map.
func MakeMapProvider(srcs map[string]string) Provider {
	return func(ctx context.Context, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}
