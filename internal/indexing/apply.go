package indexing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
	"github.com/karolberezicki/content-search-lucene/internal/reference"
	"github.com/karolberezicki/content-search-lucene/internal/vpath"
)

// apply carries out one request completely: documents, merged reference
// text and path cascades are committed before it returns nil.
func (o *Orchestrator) apply(ctx context.Context, req document.ChangeRequest) error {
	req, _ = document.Sanitize(req, o.limits)
	if req.ID == "" {
		slog.Warn("queue_entry_discarded", slog.String("reason", "no usable id"))
		return nil
	}

	ix, err := o.registry.Open(req.NamedIndex)
	if err != nil {
		return err
	}

	switch {
	case req.Action == document.ActionRemove:
		return o.remove(ctx, ix, req)
	case req.IsReference():
		return o.putReference(ctx, ix, req)
	default:
		return o.put(ctx, ix, req)
	}
}

// put adds or replaces a document. Update of a missing id behaves as add.
func (o *Orchestrator) put(ctx context.Context, ix *engine.Index, req document.ChangeRequest) error {
	name := ix.Name()

	// An item that was a reference until now leaves its old parent.
	prevRef, wasRef, err := o.refs.Get(ctx, name, req.ID)
	if err != nil {
		return err
	}
	var prevSiblings []reference.Entry
	if wasRef {
		if prevSiblings, err = o.refs.ForParent(ctx, name, prevRef.ParentID); err != nil {
			return err
		}
	}

	refs, err := o.refs.ForParent(ctx, name, req.ID)
	if err != nil {
		return err
	}

	src := document.Source{
		Request:       req,
		ExtractedText: o.extract.Text(ctx, req.DataLocator),
		References:    referenceTexts(refs),
	}
	rec, err := document.Build(src)
	if err != nil {
		return err
	}

	// Other indexes commit before the item's own index so that a retry
	// after a failed cascade still finds the old path.
	if req.AutoUpdateVirtualPath {
		old, live, err := storedPath(ctx, ix, req.ID)
		if err != nil {
			return err
		}
		if live && len(old) > 0 && !vpath.Equal(old, req.VirtualPathNodes) {
			if err := o.eachOtherIndex(ctx, name, func(w *engine.Writer) (int, error) {
				return rebase(ctx, w, old, req.VirtualPathNodes, "")
			}, func(other string, n int) { logCascade(other, req.ID, n) }); err != nil {
				return err
			}
		}
	}

	err = ix.Write(ctx, func(w *engine.Writer) error {
		prev, live, err := loadSource(ctx, w, req.ID)
		if err != nil {
			return err
		}
		if err := w.Put(rec); err != nil {
			return err
		}
		if wasRef {
			if err := rebuildParent(ctx, w, prevRef.ParentID, referenceTexts(without(prevSiblings, req.ID))); err != nil {
				return err
			}
		}

		if !req.AutoUpdateVirtualPath || !live {
			return nil
		}
		old := prev.Request.VirtualPathNodes
		if len(old) == 0 || vpath.Equal(old, req.VirtualPathNodes) {
			return nil
		}
		n, err := rebase(ctx, w, old, req.VirtualPathNodes, req.ID)
		if err != nil {
			return err
		}
		logCascade(name, req.ID, n)
		return nil
	})
	if err != nil {
		return err
	}

	if wasRef {
		return o.refs.Delete(ctx, name, req.ID)
	}
	return nil
}

// putReference stores reference text and re-merges the parents it affects.
// The reference item never becomes a document of its own.
func (o *Orchestrator) putReference(ctx context.Context, ix *engine.Index, req document.ChangeRequest) error {
	name := ix.Name()
	entry := reference.Entry{
		NamedIndex:  name,
		ParentID:    req.ReferenceID,
		RefID:       req.ID,
		Title:       req.Title,
		DisplayText: req.DisplayText,
		Metadata:    req.Metadata,
	}

	prev, hadPrev, err := o.refs.Get(ctx, name, req.ID)
	if err != nil {
		return err
	}
	moved := hadPrev && prev.ParentID != entry.ParentID

	siblings, err := o.refs.ForParent(ctx, name, entry.ParentID)
	if err != nil {
		return err
	}
	var oldSiblings []reference.Entry
	if moved {
		if oldSiblings, err = o.refs.ForParent(ctx, name, prev.ParentID); err != nil {
			return err
		}
	}

	err = ix.Write(ctx, func(w *engine.Writer) error {
		if exists, err := w.Exists(ctx, req.ID); err != nil {
			return err
		} else if exists {
			w.Delete(req.ID)
		}
		if err := rebuildParent(ctx, w, entry.ParentID, referenceTexts(upsert(siblings, entry))); err != nil {
			return err
		}
		if moved {
			return rebuildParent(ctx, w, prev.ParentID, referenceTexts(without(oldSiblings, req.ID)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("reference_merged",
		slog.String("index", name),
		slog.String("ref_id", req.ID),
		slog.String("parent_id", entry.ParentID),
		slog.Bool("moved", moved))
	return o.refs.Put(ctx, entry)
}

// remove deletes a document, or a reference and its contribution to its
// parent. With autoUpdateVirtualPath the subtree under the item goes too.
// Removing a missing id changes nothing.
func (o *Orchestrator) remove(ctx context.Context, ix *engine.Index, req document.ChangeRequest) error {
	name := ix.Name()

	ref, isRef, err := o.refs.Get(ctx, name, req.ID)
	if err != nil {
		return err
	}
	var siblings []reference.Entry
	if isRef {
		if siblings, err = o.refs.ForParent(ctx, name, ref.ParentID); err != nil {
			return err
		}
	}

	if req.AutoUpdateVirtualPath {
		path, live, err := storedPath(ctx, ix, req.ID)
		if err != nil {
			return err
		}
		if !live {
			path = req.VirtualPathNodes
		}
		if len(path) > 0 {
			if err := o.eachOtherIndex(ctx, name, func(w *engine.Writer) (int, error) {
				return removeSubtree(ctx, w, path)
			}, func(other string, n int) { logSubtreeRemoved(other, req.ID, n) }); err != nil {
				return err
			}
		}
	}

	err = ix.Write(ctx, func(w *engine.Writer) error {
		prev, live, err := loadSource(ctx, w, req.ID)
		if err != nil {
			return err
		}
		path := req.VirtualPathNodes
		if live {
			w.Delete(req.ID)
			path = prev.Request.VirtualPathNodes
		}
		if isRef {
			if err := rebuildParent(ctx, w, ref.ParentID, referenceTexts(without(siblings, req.ID))); err != nil {
				return err
			}
		}

		if !req.AutoUpdateVirtualPath || len(path) == 0 {
			return nil
		}
		n, err := removeSubtree(ctx, w, path)
		if err != nil {
			return err
		}
		logSubtreeRemoved(name, req.ID, n)
		return nil
	})
	if err != nil {
		return err
	}

	if isRef {
		return o.refs.Delete(ctx, name, req.ID)
	}
	return nil
}

// eachOtherIndex runs fn in its own write on every open index except skip.
// Each index commits atomically on its own.
func (o *Orchestrator) eachOtherIndex(ctx context.Context, skip string, fn func(w *engine.Writer) (int, error), done func(name string, n int)) error {
	for _, other := range o.registry.All() {
		if other.Name() == skip {
			continue
		}
		var n int
		err := other.Write(ctx, func(w *engine.Writer) error {
			var err error
			n, err = fn(w)
			return err
		})
		if err != nil {
			return fmt.Errorf("cascade into index %q: %w", other.Name(), err)
		}
		done(other.Name(), n)
	}
	return nil
}

func subtreeQuery(nodes []string) query.Query {
	q := bleve.NewTermQuery(vpath.Join(nodes))
	q.SetField(engine.FieldVPathPrefix)
	return q
}

// rebase moves every document under oldPath, except skipID, to newPath.
func rebase(ctx context.Context, w *engine.Writer, oldPath, newPath []string, skipID string) (int, error) {
	ids, err := w.Find(ctx, subtreeQuery(oldPath))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		if id == skipID {
			continue
		}
		src, live, err := loadSource(ctx, w, id)
		if err != nil {
			return n, err
		}
		if !live {
			continue
		}
		nodes, ok := vpath.Rebase(src.Request.VirtualPathNodes, oldPath, newPath)
		if !ok {
			continue
		}
		src.Request.VirtualPathNodes = nodes
		rec, err := document.Build(src)
		if err != nil {
			return n, err
		}
		if err := w.Put(rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func removeSubtree(ctx context.Context, w *engine.Writer, path []string) (int, error) {
	ids, err := w.Find(ctx, subtreeQuery(path))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		w.Delete(id)
	}
	return len(ids), nil
}

// rebuildParent re-merges refs into parentID if it is live. A missing parent
// leaves the references orphaned until it is added.
func rebuildParent(ctx context.Context, w *engine.Writer, parentID string, refs []document.ReferenceText) error {
	src, live, err := loadSource(ctx, w, parentID)
	if err != nil || !live {
		return err
	}
	src.References = refs
	rec, err := document.Build(src)
	if err != nil {
		return err
	}
	return w.Put(rec)
}

// storedPath returns the committed virtual path of id in ix.
func storedPath(ctx context.Context, ix *engine.Index, id string) ([]string, bool, error) {
	data, ok, err := ix.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	src, err := document.DecodeSource(data)
	if err != nil {
		return nil, false, err
	}
	return src.Request.VirtualPathNodes, true, nil
}

func loadSource(ctx context.Context, w *engine.Writer, id string) (document.Source, bool, error) {
	data, ok, err := w.Get(ctx, id)
	if err != nil || !ok {
		return document.Source{}, false, err
	}
	src, err := document.DecodeSource(data)
	if err != nil {
		return document.Source{}, false, err
	}
	return src, true, nil
}

func referenceTexts(entries []reference.Entry) []document.ReferenceText {
	if len(entries) == 0 {
		return nil
	}
	out := make([]document.ReferenceText, 0, len(entries))
	for _, e := range entries {
		out = append(out, document.ReferenceText{
			ID:          e.RefID,
			Title:       e.Title,
			DisplayText: e.DisplayText,
			Metadata:    e.Metadata,
		})
	}
	return out
}

// upsert replaces the entry with e's ref id in place, or appends e.
func upsert(entries []reference.Entry, e reference.Entry) []reference.Entry {
	out := make([]reference.Entry, 0, len(entries)+1)
	replaced := false
	for _, x := range entries {
		if x.RefID == e.RefID {
			out = append(out, e)
			replaced = true
			continue
		}
		out = append(out, x)
	}
	if !replaced {
		out = append(out, e)
	}
	return out
}

func without(entries []reference.Entry, refID string) []reference.Entry {
	out := make([]reference.Entry, 0, len(entries))
	for _, x := range entries {
		if x.RefID != refID {
			out = append(out, x)
		}
	}
	return out
}

func logCascade(index, id string, n int) {
	if n == 0 {
		return
	}
	slog.Info("vpath_cascade_applied",
		slog.String("index", index),
		slog.String("id", id),
		slog.Int("documents", n))
}

func logSubtreeRemoved(index, id string, n int) {
	if n == 0 {
		return
	}
	slog.Info("vpath_subtree_removed",
		slog.String("index", index),
		slog.String("id", id),
		slog.Int("documents", n))
}
