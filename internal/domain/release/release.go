package release

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultNotesTemplate is the body of every published release.
const DefaultNotesTemplate = `{{.AppName}} {{.Version}}

Download {{.ArchiveName}} below and unpack it.
The archive contains the application bundle and the resource folder at its top level;
keep them next to each other when moving the application.

Presets for prompts, platforms, glossaries and text replacement are shipped under resource/.`

// Draft is the request to create a release on the host.
type Draft struct {
	// Tag is the git tag the release is attached to.
	Tag string
	// Title is the human-readable release name.
	Title string
	// Body is the release notes.
	Body string
	// Draft marks the release as unpublished.
	Draft bool
	// Prerelease marks the release as a pre-release.
	Prerelease bool
}

// Target is the created release, used as the upload target of the asset.
type Target struct {
	// ID is the release identifier on the host.
	ID int64
	// Tag is the release tag.
	Tag string
	// UploadURL is the URL template for asset uploads.
	UploadURL string
	// HTMLURL is the release page.
	HTMLURL string
}

// Archive describes the compressed output directory.
type Archive struct {
	// Path is the archive location on disk.
	Path string
	// Name is the archive filename, also used as asset name.
	Name string
	// Size is the archive size in bytes.
	Size int64
	// Checksum is the base64-encoded SHA-512 of the archive.
	Checksum string
	// Entries is the number of entries written.
	Entries int
}

// Asset is the uploaded archive as reported by the host.
type Asset struct {
	// ID is the asset identifier on the host.
	ID int64
	// Name is the asset filename.
	Name string
	// ContentType is the media type the asset was uploaded with.
	ContentType string
	// Size is the asset size in bytes.
	Size int64
	// DownloadURL is the public download link.
	DownloadURL string
}

// NotesData is the input of the release notes template.
type NotesData struct {
	AppName     string
	Version     Version
	ArchiveName string
	Platform    string
	Arch        string
}

// ParseNotesTemplate compiles a release notes template.
func ParseNotesTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("notes").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse release notes template: %w", err)
	}

	return tmpl, nil
}

// NewDraft builds the release request for a product version.
// The release is never a draft nor a pre-release.
func NewDraft(product Product, v Version, notes string) (*Draft, error) {
	if notes == "" {
		notes = DefaultNotesTemplate
	}

	tmpl, err := ParseNotesTemplate(notes)
	if err != nil {
		return nil, err
	}

	data := NotesData{
		AppName:     product.AppName,
		Version:     v,
		ArchiveName: product.ArchiveName(v),
		Platform:    product.Platform,
		Arch:        product.Arch,
	}

	var body bytes.Buffer
	if err = tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render release notes: %w", err)
	}

	return &Draft{
		Tag:        v.Tag(),
		Title:      product.ReleaseTitle(v),
		Body:       body.String(),
		Draft:      false,
		Prerelease: false,
	}, nil
}
