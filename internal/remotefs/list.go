package remotefs

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/onedrive-fs/internal/graph"
	"github.com/tonimelisma/onedrive-fs/internal/itempath"
)

// ListContents returns the entries below path. With deep set, every folder
// found is descended into until none are left; otherwise only the
// immediate children are returned. Any failure discards everything
// gathered so far.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) ([]StorageEntry, error) {
	if err := checkPath("list", path, ErrListing); err != nil {
		return nil, err
	}

	a.logger.Info("listing contents",
		slog.String("path", path),
		slog.Bool("deep", deep),
	)

	items, err := a.api.ListChildren(ctx, itempath.ChildrenURL(a.root, path))
	if err != nil {
		return nil, newError("list", path, ErrListing, err)
	}

	if deep {
		pending := folders(items)

		for len(pending) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, newError("list", path, ErrListing, err)
			}

			folder := pending[len(pending)-1]
			pending = pending[:len(pending)-1]

			folderPath := itempath.FromParentReference(a.root, folder.ParentPath, folder.Name)

			children, err := a.api.ListChildren(ctx, itempath.ChildrenURL(a.root, folderPath))
			if err != nil {
				return nil, newError("list", path, ErrListing, err)
			}

			a.logger.Debug("listed folder",
				slog.String("path", folderPath),
				slog.Int("children", len(children)),
			)

			items = append(items, children...)
			pending = append(pending, folders(children)...)
		}
	}

	entries := make([]StorageEntry, 0, len(items))
	for i := range items {
		entries = append(entries, a.toEntry(&items[i]))
	}

	a.logger.Info("listing complete",
		slog.String("path", path),
		slog.Int("entries", len(entries)),
	)

	return entries, nil
}

func folders(items []graph.Item) []graph.Item {
	var out []graph.Item

	for i := range items {
		if items[i].IsFolder {
			out = append(out, items[i])
		}
	}

	return out
}

func (a *Adapter) toEntry(item *graph.Item) StorageEntry {
	e := StorageEntry{
		Path:         itempath.FromParentReference(a.root, item.ParentPath, item.Name),
		Type:         TypeDirectory,
		LastModified: item.ModifiedAt,
		Visibility:   VisibilityPublic,
	}

	if item.IsFile {
		e.Type = TypeFile
		e.Size = item.Size
		e.MimeType = item.MimeType
	}

	return e
}
