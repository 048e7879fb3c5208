//go:build !darwin

package fileops

// DefaultTrasher returns the freedesktop.org home trash
func DefaultTrasher() Trasher {
	return NewFreeDesktopTrash("")
}
