package enums

// ContentStatus is the publication state of a catalog item.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusArchived  ContentStatus = "archived"
)

// IsUnlockable reports whether members may purchase the item.
func (s ContentStatus) IsUnlockable() bool {
	return s == ContentStatusPublished
}
