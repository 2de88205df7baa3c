package domain

// OrchestratedBuild is one multi-component build described by a single
// build.xml manifest, identified by branch + build number. It owns every
// entity parsed out of that manifest.
type OrchestratedBuild struct {
	OrchestratedBuildID string `json:"orchestrated_build_id"`
	BuildNumber         string `json:"build_number"`
	Branch              string `json:"branch"`
	Name                string `json:"name,omitempty"`
	IsStable            bool   `json:"is_stable"`
	VersionStamp        string `json:"version_stamp,omitempty"`

	Builds    []Build    `json:"builds,omitempty"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
	Packages  []Package  `json:"packages,omitempty"`
	Blobs     []Blob     `json:"blobs,omitempty"`
}

// Build is one named component build contributing to an orchestrated build.
type Build struct {
	BuildID             string `json:"build_id"`
	OrchestratedBuildID string `json:"orchestrated_build_id"`
	Name                string `json:"name"`
	BuildNumber         string `json:"build_number,omitempty"`
	Branch              string `json:"branch,omitempty"`
	ProductVersion      string `json:"product_version,omitempty"`
	Commit              string `json:"commit,omitempty"`
}

// Endpoint is an artifact-serving location declared by the manifest. URL is
// the declared value, unmodified; derived artifact URLs live on EndpointRef.
type Endpoint struct {
	EndpointID string `json:"endpoint_id"`
	LocalID    string `json:"id"`
	Type       string `json:"type,omitempty"`
	URL        string `json:"url"`
}

// Package is a package artifact, deduplicated within one orchestrated build
// by its local id.
type Package struct {
	PackageID     string        `json:"package_id"`
	LocalID       string        `json:"id"`
	Version       string        `json:"version,omitempty"`
	NonShipping   bool          `json:"non_shipping"`
	OriginBuildID string        `json:"origin_build_id,omitempty"`
	Endpoints     []EndpointRef `json:"endpoints,omitempty"`
}

// Blob is a blob artifact, deduplicated within one orchestrated build by its
// local id.
type Blob struct {
	BlobID        string        `json:"blob_id"`
	LocalID       string        `json:"id"`
	Type          string        `json:"type,omitempty"`
	ShipInstaller string        `json:"ship_installer,omitempty"`
	Endpoints     []EndpointRef `json:"endpoints,omitempty"`
}

// EndpointRef records that its owning package or blob is reachable through
// one endpoint at one derived URL.
type EndpointRef struct {
	EndpointRefID string `json:"endpoint_ref_id"`
	EndpointID    string `json:"endpoint_id"`
	ArtifactURL   string `json:"artifact_url"`
}

// Event is one row of the append-only import log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
