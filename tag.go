package forge

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Tag is an opaque 128-bit key identifying a shader or a pipeline shader slot.
//
// Tags are comparable and are used directly as map keys. Two tags are equal
// only when all 128 bits are equal; tags have no ordering.
type Tag [16]byte

// Tagger is implemented by any value that names a shader.
//
// Applications usually declare an enum of their shaders and implement Tagger
// on it, deriving each variant's tag with TagFromName:
//
//	type Shaders int
//
//	const (
//	    SpriteVert Shaders = iota
//	    SpriteFrag
//	)
//
//	var shaderNames = [...]string{"sprite.vert", "sprite.frag"}
//
//	func (s Shaders) Tag() forge.Tag { return forge.TagFromName(shaderNames[s]) }
type Tagger interface {
	Tag() Tag
}

// Tag implements Tagger.
func (t Tag) Tag() Tag { return t }

// tagNamespace scopes name-derived tags so they never collide with tags
// derived from the same names by other UUID users.
var tagNamespace = uuid.MustParse("6f1c8f9e-3a4d-5b21-9e0f-7c2a1d4e8b90")

// NewTag returns a random tag.
func NewTag() Tag {
	return Tag(uuid.New())
}

// TagFromName returns a tag derived deterministically from name.
// The same name yields the same tag in every process.
func TagFromName(name string) Tag {
	return Tag(uuid.NewSHA1(tagNamespace, []byte(name)))
}

// TagFromUint64 returns the tag whose 128-bit big-endian value is v.
// It is meant for small integer tags chosen by hand, such as 0x1.
// Zero is reserved: ShaderTags uses the zero Tag to mark an unused slot.
func TagFromUint64(v uint64) Tag {
	var t Tag
	binary.BigEndian.PutUint64(t[8:], v)
	return t
}

// ParseTag parses the UUID text form produced by Tag.String.
func ParseTag(s string) (Tag, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Tag{}, fmt.Errorf("%w: %q: %w", ErrInvalidTag, s, err)
	}
	return Tag(u), nil
}

// IsZero reports whether t is the zero tag.
func (t Tag) IsZero() bool { return t == Tag{} }

// String returns the UUID text form of t.
func (t Tag) String() string {
	return uuid.UUID(t).String()
}
