// Package bundle moves receipts between stores as a deterministic TAR
// archive.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

// ErrDigestMismatch means an entry's name and its receipt disagree.
var ErrDigestMismatch = errors.New("bundle: entry name does not match receipt digest")

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// IncludeIndex adds index.json, a non-authoritative listing.
	IncludeIndex bool
}

// Export writes the receipts for ds to w. Entry order is lexicographic by
// CID and TAR headers are normalized, so equal inputs give equal bytes.
func Export(ctx context.Context, w io.Writer, store receipt.Store, ds []digest.Digest, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]digest.Digest, len(ds))
	for _, d := range ds {
		id, err := d.CID()
		if err != nil {
			return receipt.ErrInvalidDigest
		}
		uniq[id.String()] = d
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(names))
	for _, name := range names {
		r, err := store.Get(ctx, uniq[name])
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", uniq[name], err)
		}
		b, err := receipt.Marshal(r)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "receipts/"+name+".json", b); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{
			CID:       name,
			Digest:    r.Digest.String(),
			Signature: r.Signature.String(),
			Confirmed: r.Confirmed(),
		})
	}

	if opts.IncludeIndex {
		b, err := json.Marshal(indexJSON{Version: FormatVersion, Receipts: entries})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips unexpected entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle and stores every receipt in it. It returns how many
// receipts were stored before the first error.
func Import(ctx context.Context, r io.Reader, store receipt.Store, opts ImportOptions) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	n := 0
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return n, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return n, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		if !strings.HasPrefix(name, "receipts/") || !strings.HasSuffix(name, ".json") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return n, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cid.Decode(strings.TrimSuffix(strings.TrimPrefix(name, "receipts/"), ".json"))
		if err != nil {
			return n, receipt.ErrInvalidDigest
		}
		want, err := digest.FromCID(id)
		if err != nil {
			return n, receipt.ErrInvalidDigest
		}
		if _, ok := seen[want.String()]; ok {
			return n, fmt.Errorf("bundle: duplicate receipt entry: %s", name)
		}
		seen[want.String()] = struct{}{}

		b, err := io.ReadAll(tr)
		if err != nil {
			return n, err
		}
		rec, err := receipt.Unmarshal(b)
		if err != nil {
			return n, err
		}
		if rec.Digest != want {
			return n, ErrDigestMismatch
		}
		if err := store.Put(ctx, rec); err != nil {
			return n, fmt.Errorf("bundle: %s: %w", want, err)
		}
		n++
	}
}

type indexJSON struct {
	Version  int          `json:"version"`
	Receipts []indexEntry `json:"receipts"`
}

type indexEntry struct {
	CID       string `json:"cid"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
	Confirmed bool   `json:"confirmed"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
