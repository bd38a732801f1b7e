package noteservice

// ChangeKind names a committed change to the document set.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeMoved    ChangeKind = "moved"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReloaded ChangeKind = "reloaded"
)

// Change describes one committed mutation. From is set for moves; Path is
// empty for a reload.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Path string     `json:"path,omitempty"`
	From string     `json:"from,omitempty"`
}

// Notifier receives changes after they are visible to readers. Notify must
// not block.
type Notifier interface {
	Notify(Change)
}

func (s *Service) notify(kind ChangeKind, path, from string) {
	if s.notifier != nil {
		s.notifier.Notify(Change{Kind: kind, Path: path, From: from})
	}
}
