// Package normalize turns a parsed build manifest into the deduplicated
// entity graph the store persists. It is pure: no I/O, deterministic output
// for identical input.
package normalize

import (
	"fmt"
	"strings"

	"prodcon/internal/domain"
	"prodcon/internal/manifest"
)

// anonymousBuildName marks component builds the manifest convention treats
// as throwaway; they never become Build entities.
const anonymousBuildName = "anonymous"

// Load builds one OrchestratedBuild from a parsed manifest. The branch is
// supplied by the caller from repository path context, never read from the
// manifest itself.
//
// Artifact identity is scoped by local id only: the first occurrence across
// all endpoints establishes the canonical package/blob record (first-seen
// version wins), every occurrence records one EndpointRef.
func Load(m *manifest.Manifest, branch string) (*domain.OrchestratedBuild, error) {
	stable, err := manifest.ParseStableFlag(m.Identity.IsStable)
	if err != nil {
		return nil, err
	}

	ob := &domain.OrchestratedBuild{
		OrchestratedBuildID: branch + "/" + m.Identity.BuildID,
		BuildNumber:         m.Identity.BuildID,
		Branch:              branch,
		Name:                m.Identity.Name,
		IsStable:            stable,
		VersionStamp:        m.Identity.VersionStamp,
	}

	buildsByName := make(map[string]string, len(m.Builds))
	for _, b := range m.Builds {
		if b.Name == anonymousBuildName {
			continue
		}
		// Name is unique within the collection; first declaration wins.
		if _, ok := buildsByName[b.Name]; ok {
			continue
		}
		build := domain.Build{
			BuildID:             fmt.Sprintf("%s/builds/%s/%s", ob.OrchestratedBuildID, b.Name, b.BuildID),
			OrchestratedBuildID: ob.OrchestratedBuildID,
			Name:                b.Name,
			BuildNumber:         b.BuildID,
			Branch:              b.Branch,
			ProductVersion:      b.ProductVersion,
			Commit:              b.Commit,
		}
		buildsByName[build.Name] = build.BuildID
		ob.Builds = append(ob.Builds, build)
	}

	packageIndex := make(map[string]int)
	blobIndex := make(map[string]int)
	for _, ep := range m.Endpoints {
		baseURL := strings.TrimSuffix(ep.URL, "/index.json")
		if ep.IsOrchestratedBlobFeed() {
			baseURL += "/assets"
		}

		endpoint := domain.Endpoint{
			EndpointID: fmt.Sprintf("%s/endpoints/%s", ob.OrchestratedBuildID, ep.ID),
			LocalID:    ep.ID,
			Type:       ep.Type,
			URL:        ep.URL,
		}
		ob.Endpoints = append(ob.Endpoints, endpoint)

		for _, artifact := range ep.Packages {
			ref := domain.EndpointRef{
				EndpointRefID: fmt.Sprintf("%s/endpoints/%s/packages/%s", ob.OrchestratedBuildID, endpoint.EndpointID, artifact.ID),
				EndpointID:    endpoint.EndpointID,
				ArtifactURL: fmt.Sprintf("%s/flatcontainer/%s/%s/%s.%s.nupkg",
					baseURL, artifact.ID, artifact.Version, artifact.ID, artifact.Version),
			}
			if i, ok := packageIndex[artifact.ID]; ok {
				ob.Packages[i].Endpoints = append(ob.Packages[i].Endpoints, ref)
				continue
			}
			nonShipping, err := artifact.BoolAttr("NonShipping", true)
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", artifact.ID, err)
			}
			pkg := domain.Package{
				PackageID:   fmt.Sprintf("%s/packages/%s", ob.OrchestratedBuildID, artifact.ID),
				LocalID:     artifact.ID,
				Version:     artifact.Version,
				NonShipping: nonShipping,
				Endpoints:   []domain.EndpointRef{ref},
			}
			if artifact.OriginBuildName != "" {
				if buildID, ok := buildsByName[artifact.OriginBuildName]; ok {
					pkg.OriginBuildID = buildID
				}
			}
			packageIndex[artifact.ID] = len(ob.Packages)
			ob.Packages = append(ob.Packages, pkg)
		}

		for _, artifact := range ep.Blobs {
			ref := domain.EndpointRef{
				EndpointRefID: fmt.Sprintf("%s/endpoints/%s/blobs/%s", ob.OrchestratedBuildID, endpoint.EndpointID, artifact.ID),
				EndpointID:    endpoint.EndpointID,
				// For the orchestrated blob feed this yields ".../assets/assets/..."
				// because the base URL already got the feed segment. Observed
				// upstream behavior; downstream keys depend on it.
				ArtifactURL: fmt.Sprintf("%s/assets/%s", baseURL, artifact.ID),
			}
			if i, ok := blobIndex[artifact.ID]; ok {
				ob.Blobs[i].Endpoints = append(ob.Blobs[i].Endpoints, ref)
				continue
			}
			blob := domain.Blob{
				BlobID:        fmt.Sprintf("%s/blobs/%s", ob.OrchestratedBuildID, artifact.ID),
				LocalID:       artifact.ID,
				Type:          artifact.StringAttr("Type"),
				ShipInstaller: artifact.StringAttr("ShipInstaller"),
				Endpoints:     []domain.EndpointRef{ref},
			}
			blobIndex[artifact.ID] = len(ob.Blobs)
			ob.Blobs = append(ob.Blobs, blob)
		}
	}

	return ob, nil
}
