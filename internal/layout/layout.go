package layout

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Well-known artifact names inside an item prefix.
const (
	MasterPlaylist = "master.m3u8"
	MasterMP4      = "master.mp4"
	Thumbnail      = "thumb.jpg"
	Image          = "image.jpg"
)

// Layout is the object key naming policy. Every artifact of an item lives
// under one prefix so the whole item can be removed with a single prefix
// delete.
type Layout struct {
	Root       string
	Collection string
}

// New returns a Layout rooted at root/{owner}/collection.
func New(root, collection string) Layout {
	return Layout{
		Root:       strings.Trim(root, "/"),
		Collection: strings.Trim(collection, "/"),
	}
}

// ItemPrefix returns the prefix for item index of a request holding total
// items: "media/{owner}/posts/{req}" for single uploads and
// "media/{owner}/posts/{req}_{index}" for carousels.
func (l Layout) ItemPrefix(ownerID, requestID string, index, total int) string {
	leaf := requestID
	if total > 1 {
		leaf = fmt.Sprintf("%s_%d", requestID, index)
	}
	return path.Join(l.Root, ownerID, l.Collection, leaf)
}

// Key joins prefix and name into an object key.
func (l Layout) Key(prefix, name string) string {
	return prefix + "/" + name
}

// ffmpeg output patterns for an HLS bundle. %v is the tier index.
const (
	StreamPlaylistPattern = "stream_%v.m3u8"
	SegmentPattern        = "section_%v_%03d.ts"
)

// StreamPlaylist is the per-tier playlist name.
func StreamPlaylist(tier int) string {
	return strings.Replace(StreamPlaylistPattern, "%v", strconv.Itoa(tier), 1)
}

// SpritePart is the name of sprite part n of the given id.
func SpritePart(id string, n int) string {
	return fmt.Sprintf("sprite_%s_%d.jpg", id, n)
}

// PrefixFromURL recovers the item prefix from any artifact URL produced
// under this layout. It returns false when the URL does not point at an
// object below Root/{owner}/Collection/{item}/.
func (l Layout) PrefixFromURL(raw string) (string, bool) {
	segments, ok := l.locate(raw)
	if !ok {
		return "", false
	}
	return strings.Join(segments[:4], "/"), true
}

// ObjectKey recovers the object key of an artifact URL produced under this
// layout, dropping any path the public base URL adds in front of Root.
func (l Layout) ObjectKey(raw string) (string, bool) {
	segments, ok := l.locate(raw)
	if !ok {
		return "", false
	}
	return strings.Join(segments, "/"), true
}

// locate returns the URL path segments starting at Root.
func (l Layout) locate(raw string) ([]string, bool) {
	key, ok := KeyFromURL(raw)
	if !ok {
		return nil, false
	}

	// The public base URL may carry a bucket path of its own, so look for
	// root/{owner}/collection/{item}/{artifact} anywhere in the path.
	segments := strings.Split(key, "/")
	for i := 0; i+4 < len(segments); i++ {
		if segments[i] != l.Root || segments[i+2] != l.Collection {
			continue
		}
		if segments[i+1] == "" || segments[i+3] == "" || segments[len(segments)-1] == "" {
			return nil, false
		}
		return segments[i:], true
	}
	return nil, false
}

// KeyFromURL strips scheme, host and leading slash from a public URL.
func KeyFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", false
	}
	return key, true
}
