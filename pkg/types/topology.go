package types

type ClusterMeta struct {
	ID       string `json:"id"`
	ActiveDc string `json:"activeDc"`
}

type DcMeta struct {
	ID       string                  `json:"id"`
	Clusters map[string]*ClusterMeta `json:"clusters"`
}

// Topology is a read only view of which clusters are active in which dc.
type Topology struct {
	Dcs map[string]*DcMeta `json:"dcs"`
}

type TopologyCache interface {
	// Snapshot may return nil when no topology has been loaded yet.
	Snapshot() *Topology
}
