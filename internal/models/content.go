package models

import "fmt"

// ContentKind names the kind of item a moderation or rights record points at.
type ContentKind string

const (
	ContentVideo      ContentKind = "video"
	ContentImage      ContentKind = "image"
	ContentAudio      ContentKind = "audio"
	ContentText       ContentKind = "text"
	ContentComment    ContentKind = "comment"
	ContentLivestream ContentKind = "livestream"
	ContentMessage    ContentKind = "message"
	ContentProfile    ContentKind = "profile"
)

var contentKinds = map[ContentKind]struct{}{
	ContentVideo: {}, ContentImage: {}, ContentAudio: {}, ContentText: {},
	ContentComment: {}, ContentLivestream: {}, ContentMessage: {}, ContentProfile: {},
}

// ContentKinds lists every supported kind in a stable order.
func ContentKinds() []ContentKind {
	return []ContentKind{
		ContentVideo, ContentImage, ContentAudio, ContentText,
		ContentComment, ContentLivestream, ContentMessage, ContentProfile,
	}
}

func (k ContentKind) Valid() bool {
	_, ok := contentKinds[k]
	return ok
}

// ContentRef is a typed pointer to a piece of content owned by another service.
type ContentRef struct {
	Kind ContentKind `json:"kind" gorm:"column:content_kind;size:32;index"`
	ID   string      `json:"id"   gorm:"column:content_id;size:64;uniqueIndex"`
}

func (r ContentRef) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }
