package client

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io/ioutil"
    "net/http"
    "net/url"
    "sync"
    "time"

    "github.com/PelionIoT/cacheviews/historian"
    "github.com/PelionIoT/cacheviews/routes"
)

const DefaultClientTimeout = time.Second * 10

type APIClientConfig struct {
    // host:port of each node to talk to. Requests rotate between them.
    Servers []string
    Timeout time.Duration
}

// APIClient talks to the admin API of cacheviews nodes
type APIClient struct {
    servers         []string
    nextServerIndex int
    httpClient      *http.Client
    lock            sync.Mutex
}

func New(config APIClientConfig) *APIClient {
    if config.Timeout == 0 {
        config.Timeout = DefaultClientTimeout
    }

    return &APIClient{
        servers:         config.Servers,
        nextServerIndex: 0,
        httpClient:      &http.Client{Timeout: config.Timeout},
    }
}

func (client *APIClient) nextServer() (server string) {
    client.lock.Lock()
    defer client.lock.Unlock()

    if len(client.servers) == 0 {
        return
    }

    server = client.servers[client.nextServerIndex]
    client.nextServerIndex = (client.nextServerIndex + 1) % len(client.servers)

    return
}

func (client *APIClient) Cluster(ctx context.Context) (routes.ClusterOverview, error) {
    var overview routes.ClusterOverview

    encodedOverview, err := client.sendRequest(ctx, "GET", "/cluster", nil)

    if err != nil {
        return routes.ClusterOverview{}, err
    }

    if err := json.Unmarshal(encodedOverview, &overview); err != nil {
        return routes.ClusterOverview{}, err
    }

    return overview, nil
}

func (client *APIClient) Views(ctx context.Context) ([]routes.CacheViewSummary, error) {
    var summaries []routes.CacheViewSummary

    encodedSummaries, err := client.sendRequest(ctx, "GET", "/views", nil)

    if err != nil {
        return nil, err
    }

    if err := json.Unmarshal(encodedSummaries, &summaries); err != nil {
        return nil, err
    }

    return summaries, nil
}

func (client *APIClient) View(ctx context.Context, cacheName string) (routes.CacheViewSummary, error) {
    var summary routes.CacheViewSummary

    encodedSummary, err := client.sendRequest(ctx, "GET", "/views/"+url.PathEscape(cacheName), nil)

    if err != nil {
        return routes.CacheViewSummary{}, err
    }

    if err := json.Unmarshal(encodedSummary, &summary); err != nil {
        return routes.CacheViewSummary{}, err
    }

    return summary, nil
}

func (client *APIClient) Join(ctx context.Context, cacheName string) error {
    _, err := client.sendRequest(ctx, "POST", fmt.Sprintf("/views/%s/join", url.PathEscape(cacheName)), nil)

    return err
}

func (client *APIClient) Leave(ctx context.Context, cacheName string) error {
    _, err := client.sendRequest(ctx, "POST", fmt.Sprintf("/views/%s/leave", url.PathEscape(cacheName)), nil)

    return err
}

func (client *APIClient) History(ctx context.Context, cacheName string) ([]historian.HistoryEntry, error) {
    var entries []historian.HistoryEntry

    encodedEntries, err := client.sendRequest(ctx, "GET", fmt.Sprintf("/views/%s/history", url.PathEscape(cacheName)), nil)

    if err != nil {
        return nil, err
    }

    if err := json.Unmarshal(encodedEntries, &entries); err != nil {
        return nil, err
    }

    return entries, nil
}

func (client *APIClient) sendRequest(ctx context.Context, httpVerb string, endpointURL string, body []byte) ([]byte, error) {
    server := client.nextServer()

    if len(server) == 0 {
        return nil, ENoServers
    }

    u := fmt.Sprintf("http://%s%s", server, endpointURL)
    request, err := http.NewRequest(httpVerb, u, bytes.NewReader(body))

    if err != nil {
        return nil, err
    }

    request = request.WithContext(ctx)

    resp, err := client.httpClient.Do(request)

    if err != nil {
        return nil, err
    }

    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        errorMessage, err := ioutil.ReadAll(resp.Body)

        if err != nil {
            return nil, err
        }

        return nil, &ErrorStatusCode{Message: string(bytes.TrimSpace(errorMessage)), StatusCode: resp.StatusCode}
    }

    responseBody, err := ioutil.ReadAll(resp.Body)

    if err != nil {
        return nil, err
    }

    return responseBody, nil
}
