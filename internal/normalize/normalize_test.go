package normalize_test

import (
	"errors"
	"reflect"
	"testing"

	"prodcon/internal/manifest"
	"prodcon/internal/normalize"
)

func parse(t *testing.T, text string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

const fullManifest = `<OrchestratedBuild Name="cli" BuildId="20180420-01" IsStable="true" VersionStamp="preview2">
  <Build Name="cli" BuildId="20180420.1" Branch="release/2.1" ProductVersion="2.1.300" Commit="abc123"/>
  <Build Name="anonymous" BuildId="20180420.9"/>
  <Build Name="core-setup" BuildId="20180419.2" Branch="release/2.1" ProductVersion="2.1.0" Commit="def456"/>
  <Endpoint Id="BlobFeed" Type="BlobFeed" Url="https://feed.example/v1/index.json">
    <Package Id="Foo.Bar" Version="1.0.0" NonShipping="true" OriginBuildName="cli"/>
    <Package Id="Ship.Me" Version="2.0.0" NonShipping="false" OriginBuildName="nope"/>
    <Package Id="No.Attrs" Version="3.0.0"/>
    <Blob Id="installer.exe" Type="Installer" ShipInstaller="cli"/>
  </Endpoint>
  <Endpoint Id="Storage" Type="AzureStorage" Url="https://store.example/container">
    <Package Id="Foo.Bar" Version="9.9.9"/>
    <Blob Id="installer.exe"/>
    <Blob Id="symbols.zip"/>
  </Endpoint>
</OrchestratedBuild>`

func TestLoadIdentity(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ob.OrchestratedBuildID != "release/2.1/20180420-01" {
		t.Fatalf("unexpected id %q", ob.OrchestratedBuildID)
	}
	if ob.Branch != "release/2.1" || ob.BuildNumber != "20180420-01" {
		t.Fatalf("unexpected identity: %+v", ob)
	}
	if !ob.IsStable || ob.VersionStamp != "preview2" || ob.Name != "cli" {
		t.Fatalf("unexpected identity fields: %+v", ob)
	}
}

func TestLoadDeterministic(t *testing.T) {
	a, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two loads of the same input differ")
	}
}

func TestAnonymousBuildDropped(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Builds) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(ob.Builds))
	}
	for _, b := range ob.Builds {
		if b.Name == "anonymous" {
			t.Fatalf("anonymous build retained")
		}
	}
	if ob.Builds[0].BuildID != "release/2.1/20180420-01/builds/cli/20180420.1" {
		t.Fatalf("unexpected build id %q", ob.Builds[0].BuildID)
	}
}

func TestOriginBuildResolution(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]string{}
	for _, p := range ob.Packages {
		byID[p.LocalID] = p.OriginBuildID
	}
	if byID["Foo.Bar"] != "release/2.1/20180420-01/builds/cli/20180420.1" {
		t.Fatalf("Foo.Bar origin = %q", byID["Foo.Bar"])
	}
	// Declared origin-build name with no matching build stays unset.
	if byID["Ship.Me"] != "" {
		t.Fatalf("Ship.Me origin should be unset, got %q", byID["Ship.Me"])
	}
	if byID["No.Attrs"] != "" {
		t.Fatalf("No.Attrs origin should be unset, got %q", byID["No.Attrs"])
	}
}

func TestNonShippingDefaultsTrue(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range ob.Packages {
		switch p.LocalID {
		case "Foo.Bar", "No.Attrs":
			if !p.NonShipping {
				t.Fatalf("%s: expected NonShipping=true", p.LocalID)
			}
		case "Ship.Me":
			if p.NonShipping {
				t.Fatalf("Ship.Me: expected NonShipping=false")
			}
		}
	}
}

func TestBlobFeedURLDerivation(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	var fooBar, installer string
	for _, p := range ob.Packages {
		if p.LocalID == "Foo.Bar" {
			fooBar = p.Endpoints[0].ArtifactURL
		}
	}
	for _, b := range ob.Blobs {
		if b.LocalID == "installer.exe" {
			installer = b.Endpoints[0].ArtifactURL
		}
	}
	if fooBar != "https://feed.example/v1/assets/flatcontainer/Foo.Bar/1.0.0/Foo.Bar.1.0.0.nupkg" {
		t.Fatalf("package url = %q", fooBar)
	}
	// The doubled assets segment is pinned on purpose.
	if installer != "https://feed.example/v1/assets/assets/installer.exe" {
		t.Fatalf("blob url = %q", installer)
	}
}

func TestPlainEndpointURLDerivation(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	var symbols string
	for _, b := range ob.Blobs {
		if b.LocalID == "symbols.zip" {
			symbols = b.Endpoints[0].ArtifactURL
		}
	}
	if symbols != "https://store.example/container/assets/symbols.zip" {
		t.Fatalf("blob url = %q", symbols)
	}
}

func TestArtifactDedupAcrossEndpoints(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Packages) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(ob.Packages))
	}
	if len(ob.Blobs) != 2 {
		t.Fatalf("expected 2 blobs, got %d", len(ob.Blobs))
	}
	for _, p := range ob.Packages {
		if p.LocalID != "Foo.Bar" {
			continue
		}
		// One ref per occurrence: BlobFeed and Storage.
		if len(p.Endpoints) != 2 {
			t.Fatalf("Foo.Bar: expected 2 refs, got %d", len(p.Endpoints))
		}
		// First-seen version wins, including in the second ref's URL.
		if p.Version != "1.0.0" {
			t.Fatalf("Foo.Bar: expected first-seen version, got %q", p.Version)
		}
		second := p.Endpoints[1]
		if second.EndpointID != "release/2.1/20180420-01/endpoints/Storage" {
			t.Fatalf("second ref endpoint = %q", second.EndpointID)
		}
		if second.ArtifactURL != "https://store.example/container/flatcontainer/Foo.Bar/9.9.9/Foo.Bar.9.9.9.nupkg" {
			t.Fatalf("second ref url = %q", second.ArtifactURL)
		}
	}
	for _, b := range ob.Blobs {
		if b.LocalID == "installer.exe" {
			if len(b.Endpoints) != 2 {
				t.Fatalf("installer.exe: expected 2 refs, got %d", len(b.Endpoints))
			}
			// Metadata comes from the first occurrence only.
			if b.Type != "Installer" || b.ShipInstaller != "cli" {
				t.Fatalf("installer.exe metadata: %+v", b)
			}
		}
	}
}

func TestEndpointRefIDKeepsCompositeEndpointID(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	want := "release/2.1/20180420-01/endpoints/release/2.1/20180420-01/endpoints/BlobFeed/packages/Foo.Bar"
	for _, p := range ob.Packages {
		if p.LocalID == "Foo.Bar" && p.Endpoints[0].EndpointRefID != want {
			t.Fatalf("ref id = %q", p.Endpoints[0].EndpointRefID)
		}
	}
}

func TestEndpointsNotDeduplicated(t *testing.T) {
	ob, err := normalize.Load(parse(t, fullManifest), "release/2.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(ob.Endpoints))
	}
	if ob.Endpoints[0].EndpointID != "release/2.1/20180420-01/endpoints/BlobFeed" {
		t.Fatalf("endpoint id = %q", ob.Endpoints[0].EndpointID)
	}
	if ob.Endpoints[0].URL != "https://feed.example/v1/index.json" {
		t.Fatalf("endpoint url must stay verbatim, got %q", ob.Endpoints[0].URL)
	}
}

func TestInvalidStableFlag(t *testing.T) {
	m := parse(t, `<OrchestratedBuild BuildId="1" IsStable="maybe"/>`)
	if _, err := normalize.Load(m, "main"); !errors.Is(err, manifest.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestInvalidNonShipping(t *testing.T) {
	m := parse(t, `<OrchestratedBuild BuildId="1">
  <Endpoint Id="Storage" Url="https://store.example/c">
    <Package Id="P" Version="1.0" NonShipping="maybe"/>
  </Endpoint>
</OrchestratedBuild>`)
	if _, err := normalize.Load(m, "main"); !errors.Is(err, manifest.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}
