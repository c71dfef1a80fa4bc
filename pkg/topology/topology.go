// Package topology provides types.TopologyCache implementations. A topology
// file lists data centers and the clusters each one hosts:
//
//	dcs:
//	  dc-east:
//	    clusters:
//	      c1: {activeDc: dc-east}
//	      c2: {activeDc: dc-west}
//
// ids default to their map keys.
package topology

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/util/yaml"
	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/types"
)

const decoderBufferSize = 4096

type StaticCache struct {
	topology *types.Topology
}

var _ types.TopologyCache = (*StaticCache)(nil)

func NewStaticCache(t *types.Topology) *StaticCache {
	return &StaticCache{topology: Normalize(t)}
}

func (s *StaticCache) Snapshot() *types.Topology {
	return s.topology
}

// FileCache serves the topology last read from a YAML or JSON file. A failed
// reload keeps the previous snapshot.
type FileCache struct {
	path     string
	snapshot atomic.Value // *types.Topology
}

var _ types.TopologyCache = (*FileCache)(nil)

// NewFileCache loads path once and fails if that first load fails.
func NewFileCache(path string) (*FileCache, error) {
	c := &FileCache{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileCache) Snapshot() *types.Topology {
	t, _ := c.snapshot.Load().(*types.Topology)
	return t
}

func (c *FileCache) Reload() error {
	t, err := LoadFile(c.path)
	if err != nil {
		return err
	}
	c.snapshot.Store(t)
	return nil
}

// Run reloads the file every period until ctx is done.
func (c *FileCache) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		return
	}
	wait.UntilWithContext(ctx, func(context.Context) {
		if err := c.Reload(); err != nil {
			klogv2.Infof("[topology] reload of %s failed, keeping previous snapshot: %v", c.path, err)
			return
		}
		klogv2.V(4).Infof("[topology] reloaded %s", c.path)
	}, period)
}

func LoadFile(path string) (*types.Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology file: %w", err)
	}
	defer f.Close()

	t := &types.Topology{}
	if err := yaml.NewYAMLOrJSONDecoder(f, decoderBufferSize).Decode(t); err != nil {
		return nil, fmt.Errorf("failed to decode topology file %s: %w", path, err)
	}
	if len(t.Dcs) == 0 {
		return nil, fmt.Errorf("topology file %s has no dcs", path)
	}
	return Normalize(t), nil
}

// Normalize fills empty ids from map keys and drops nil entries.
func Normalize(t *types.Topology) *types.Topology {
	if t == nil {
		return nil
	}
	for dcKey, dc := range t.Dcs {
		if dc == nil {
			delete(t.Dcs, dcKey)
			continue
		}
		if dc.ID == "" {
			dc.ID = dcKey
		}
		for clusterKey, cluster := range dc.Clusters {
			if cluster == nil {
				delete(dc.Clusters, clusterKey)
				continue
			}
			if cluster.ID == "" {
				cluster.ID = clusterKey
			}
		}
	}
	return t
}
