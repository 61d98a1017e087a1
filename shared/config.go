package shared

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
    "errors"
    "fmt"
    "io/ioutil"
    "path/filepath"
    "time"

    "gopkg.in/yaml.v2"

    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/util"
)

const (
    DefaultViewTimeout    = 10000
    DefaultCooldown       = 1000
    DefaultInstallWorkers = 8
    DefaultProbeInterval  = 1000
    DefaultEtcdPrefix     = "/cacheviews"
    DefaultEtcdTTL        = 10
    DefaultLogLevel       = "info"
)

type YAMLServerConfig struct {
    NodeID         string       `yaml:"nodeID"`
    Host           string       `yaml:"host"`
    Port           int          `yaml:"port"`
    Peers          []YAMLPeer   `yaml:"peers"`
    Etcd           *YAMLEtcd    `yaml:"etcd"`
    Caches         []string     `yaml:"caches"`
    ViewTimeout    uint64       `yaml:"viewTimeout"`
    Cooldown       uint64       `yaml:"cooldown"`
    InstallWorkers int          `yaml:"installWorkers"`
    ProbeInterval  uint64       `yaml:"probeInterval"`
    History        *YAMLHistory `yaml:"history"`
    MaxConnections int          `yaml:"maxConnections"`
    LogLevel       string       `yaml:"logLevel"`
}

type YAMLPeer struct {
    ID   string `yaml:"id"`
    Host string `yaml:"host"`
    Port int    `yaml:"port"`
}

type YAMLEtcd struct {
    Endpoints []string `yaml:"endpoints"`
    Prefix    string   `yaml:"prefix"`
    TTL       int64    `yaml:"ttl"`
}

type YAMLHistory struct {
    Dir        string `yaml:"dir"`
    EntryLimit uint64 `yaml:"entryLimit"`
}

func (ysc *YAMLServerConfig) LoadFromFile(file string) error {
    rawConfig, err := ioutil.ReadFile(file)

    if err != nil {
        return err
    }

    if err := ysc.Load(rawConfig); err != nil {
        return err
    }

    if ysc.History != nil && len(ysc.History.Dir) != 0 {
        ysc.History.Dir = resolveFilePath(file, ysc.History.Dir)
    }

    return nil
}

// Load parses a YAML config, fills in defaults and validates it
func (ysc *YAMLServerConfig) Load(rawConfig []byte) error {
    err := yaml.Unmarshal(rawConfig, ysc)

    if err != nil {
        return err
    }

    if len(ysc.NodeID) == 0 {
        ysc.NodeID = util.NewNodeID()

        Log.Infof("No nodeID specified. Using generated ID %s", ysc.NodeID)
    }

    if len(ysc.Host) == 0 {
        ysc.Host = "localhost"
    }

    if !isValidPort(ysc.Port) {
        return errors.New(fmt.Sprintf("%d is an invalid port for the server", ysc.Port))
    }

    seen := map[string]bool{ysc.NodeID: true}

    for _, peer := range ysc.Peers {
        if len(peer.ID) == 0 {
            return errors.New("Peer ID is empty")
        }

        if peer.ID != ysc.NodeID && seen[peer.ID] {
            return errors.New(fmt.Sprintf("Peer %s is listed more than once", peer.ID))
        }

        seen[peer.ID] = true

        if len(peer.Host) == 0 {
            return errors.New(fmt.Sprintf("The host name is empty for peer %s", peer.ID))
        }

        if !isValidPort(peer.Port) {
            return errors.New(fmt.Sprintf("%d is an invalid port to connect to peer %s at %s", peer.Port, peer.ID, peer.Host))
        }
    }

    if ysc.Etcd != nil {
        if len(ysc.Etcd.Endpoints) == 0 {
            return errors.New("etcd is configured without any endpoints")
        }

        if len(ysc.Peers) != 0 {
            return errors.New("peers and etcd cannot both be used to discover the cluster")
        }

        if len(ysc.Etcd.Prefix) == 0 {
            ysc.Etcd.Prefix = DefaultEtcdPrefix
        }

        if ysc.Etcd.TTL <= 0 {
            ysc.Etcd.TTL = DefaultEtcdTTL
        }
    }

    if ysc.ViewTimeout == 0 {
        ysc.ViewTimeout = DefaultViewTimeout
    }

    if ysc.Cooldown == 0 {
        ysc.Cooldown = DefaultCooldown
    }

    if ysc.InstallWorkers < 0 {
        return errors.New("installWorkers must not be negative")
    }

    if ysc.InstallWorkers == 0 {
        ysc.InstallWorkers = DefaultInstallWorkers
    }

    if ysc.ProbeInterval == 0 {
        ysc.ProbeInterval = DefaultProbeInterval
    }

    if ysc.MaxConnections < 0 {
        return errors.New("maxConnections must not be negative")
    }

    if len(ysc.LogLevel) == 0 {
        ysc.LogLevel = DefaultLogLevel
    }

    if !LogLevelIsValid(ysc.LogLevel) {
        return errors.New(fmt.Sprintf("%s is not a valid log level", ysc.LogLevel))
    }

    SetLoggingLevel(ysc.LogLevel)

    return nil
}

func (ysc *YAMLServerConfig) ViewTimeoutDuration() time.Duration {
    return time.Millisecond * time.Duration(ysc.ViewTimeout)
}

func (ysc *YAMLServerConfig) CooldownDuration() time.Duration {
    return time.Millisecond * time.Duration(ysc.Cooldown)
}

func (ysc *YAMLServerConfig) ProbeIntervalDuration() time.Duration {
    return time.Millisecond * time.Duration(ysc.ProbeInterval)
}

func isValidPort(p int) bool {
    return p >= 0 && p < (1<<16)
}

func resolveFilePath(configFileLocation, file string) string {
    if filepath.IsAbs(file) {
        return file
    }

    return filepath.Join(filepath.Dir(configFileLocation), file)
}
