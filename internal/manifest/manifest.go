package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed marks a manifest that is not well-formed XML or is
	// missing a required identity field.
	ErrMalformed = errors.New("malformed manifest")
	// ErrInvalidValue marks a manifest field whose text cannot be parsed
	// as its declared type.
	ErrInvalidValue = errors.New("invalid manifest value")
)

// Manifest is the parsed form of one build.xml document. Parsing does not
// interpret values beyond structure; derivation happens in normalize.
type Manifest struct {
	Identity  Identity
	Builds    []BuildRef
	Endpoints []Endpoint
}

// Identity holds the manifest's own identity attributes. IsStable is kept
// as the raw optional string; the normalizer owns its interpretation.
type Identity struct {
	BuildID      string
	Name         string
	IsStable     string
	VersionStamp string
}

// BuildRef is one declared component build.
type BuildRef struct {
	Name           string
	BuildID        string
	Branch         string
	ProductVersion string
	Commit         string
}

// Endpoint is one declared artifact location with its nested artifact lists.
type Endpoint struct {
	ID       string
	Type     string
	URL      string
	Packages []Artifact
	Blobs    []Artifact
}

// IsOrchestratedBlobFeed reports whether the endpoint is the orchestrated
// blob feed, whose base URL needs an extra path segment before artifact
// paths are appended. The manifest convention marks it by local id.
func (e Endpoint) IsOrchestratedBlobFeed() bool {
	return strings.EqualFold(e.ID, "BlobFeed")
}

// Artifact is one declared package or blob. Attributes is the open bag of
// every XML attribute on the element, including Id and Version.
type Artifact struct {
	ID              string
	Version         string
	OriginBuildName string
	Attributes      map[string]string
}

// Attr returns the named attribute and whether it was declared.
func (a Artifact) Attr(name string) (string, bool) {
	v, ok := a.Attributes[name]
	return v, ok
}

// StringAttr returns the named attribute, or "" when absent.
func (a Artifact) StringAttr(name string) string {
	return a.Attributes[name]
}

// BoolAttr parses the named attribute as a strict true/false boolean,
// returning def when the attribute is absent. Any other text is an
// ErrInvalidValue.
func (a Artifact) BoolAttr(name string, def bool) (bool, error) {
	v, ok := a.Attributes[name]
	if !ok {
		return def, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("attribute %s: %w", name, err)
	}
	return b, nil
}

// ParseStableFlag interprets an IsStable value: absent or empty means
// false, otherwise the text must be a boolean.
func ParseStableFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("IsStable: %w", err)
	}
	return b, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
}

type xmlDocument struct {
	XMLName      xml.Name      `xml:"OrchestratedBuild"`
	Name         string        `xml:"Name,attr"`
	BuildID      string        `xml:"BuildId,attr"`
	IsStable     string        `xml:"IsStable,attr"`
	VersionStamp string        `xml:"VersionStamp,attr"`
	Builds       []xmlBuild    `xml:"Build"`
	Endpoints    []xmlEndpoint `xml:"Endpoint"`
}

type xmlBuild struct {
	Name           string `xml:"Name,attr"`
	BuildID        string `xml:"BuildId,attr"`
	Branch         string `xml:"Branch,attr"`
	ProductVersion string `xml:"ProductVersion,attr"`
	Commit         string `xml:"Commit,attr"`
}

type xmlEndpoint struct {
	ID       string        `xml:"Id,attr"`
	Type     string        `xml:"Type,attr"`
	URL      string        `xml:"Url,attr"`
	Packages []xmlArtifact `xml:"Package"`
	Blobs    []xmlArtifact `xml:"Blob"`
}

type xmlArtifact struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// Parse decodes one manifest document. It fails with ErrMalformed when the
// text is not well-formed XML, the root element is not OrchestratedBuild,
// or the identity BuildId attribute is missing.
func Parse(text string) (*Manifest, error) {
	var doc xmlDocument
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.BuildID == "" {
		return nil, fmt.Errorf("%w: identity BuildId attribute is missing", ErrMalformed)
	}

	m := &Manifest{
		Identity: Identity{
			BuildID:      doc.BuildID,
			Name:         doc.Name,
			IsStable:     doc.IsStable,
			VersionStamp: doc.VersionStamp,
		},
	}
	for _, b := range doc.Builds {
		m.Builds = append(m.Builds, BuildRef(b))
	}
	for _, ep := range doc.Endpoints {
		endpoint := Endpoint{ID: ep.ID, Type: ep.Type, URL: ep.URL}
		for _, a := range ep.Packages {
			endpoint.Packages = append(endpoint.Packages, newArtifact(a.Attrs))
		}
		for _, a := range ep.Blobs {
			endpoint.Blobs = append(endpoint.Blobs, newArtifact(a.Attrs))
		}
		m.Endpoints = append(m.Endpoints, endpoint)
	}
	return m, nil
}

func newArtifact(attrs []xml.Attr) Artifact {
	bag := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		bag[attr.Name.Local] = attr.Value
	}
	return Artifact{
		ID:              bag["Id"],
		Version:         bag["Version"],
		OriginBuildName: bag["OriginBuildName"],
		Attributes:      bag,
	}
}
