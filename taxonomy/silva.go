package taxonomy

import (
	"io"
	"strconv"
	"strings"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
)

// SilvaTaxon is a single entry from a SILVA tax_slv_[ls]su_VERSION.txt file.
type SilvaTaxon struct {
	ID   int
	Path string
	Rank string
	Name string
}

// SilvaDB holds a SILVA taxonomy. Ancestry is given by the ";" separated path
// of each taxon rather than by parent ids.
type SilvaDB struct {
	taxa   map[int]*SilvaTaxon
	byPath map[string]int
}

// OpenSilva reads (possibly gzipped) tax_slv txt and optional map files.
// Without a map, taxa are named by the last segment of their path.
func OpenSilva(txtPath, mapPath string) (*SilvaDB, error) {
	tf, err := xopen.Ropen(txtPath)
	if err != nil {
		return nil, err
	}
	defer tf.Close()
	var m io.Reader
	if mapPath != "" {
		mf, err := xopen.Ropen(mapPath)
		if err != nil {
			return nil, err
		}
		defer mf.Close()
		m = mf
	}
	return ReadSilva(tf, m)
}

// ReadSilva parses the tab-separated path, taxid, rank[, remark, release]
// rows of txt and the taxid, name[, mark, parent] rows of an optional map.
func ReadSilva(txt, m io.Reader) (*SilvaDB, error) {
	db := &SilvaDB{taxa: make(map[int]*SilvaTaxon, 1<<14), byPath: make(map[string]int, 1<<14)}
	err := eachRow(txt, "\t", 3, func(toks []string) error {
		id, err := strconv.Atoi(toks[1])
		if err != nil {
			return err
		}
		path := strings.TrimSuffix(toks[0], ";")
		if path == "" {
			return errors.New("empty path")
		}
		segs := strings.Split(path, ";")
		db.taxa[id] = &SilvaTaxon{ID: id, Path: path, Rank: toks[2], Name: segs[len(segs)-1]}
		db.byPath[path] = id
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "silva txt")
	}
	if m == nil {
		return db, nil
	}
	err = eachRow(m, "\t", 2, func(toks []string) error {
		id, err := strconv.Atoi(toks[0])
		if err != nil {
			return err
		}
		if t, ok := db.taxa[id]; ok && toks[1] != "" {
			t.Name = toks[1]
		}
		return nil
	})
	return db, errors.Wrap(err, "silva map")
}

// Len is the number of taxa.
func (db *SilvaDB) Len() int { return len(db.taxa) }

// Taxon returns the entry for id.
func (db *SilvaDB) Taxon(id int) (SilvaTaxon, bool) {
	t, ok := db.taxa[id]
	if !ok {
		return SilvaTaxon{}, false
	}
	return *t, true
}

// Name returns the name of id, or the id itself when unknown.
func (db *SilvaDB) Name(id int) string {
	if t, ok := db.taxa[id]; ok {
		return t.Name
	}
	return strconv.Itoa(id)
}

// Lineage returns the taxa from the domain down to id. Path prefixes that are
// not themselves listed are skipped.
func (db *SilvaDB) Lineage(id int) ([]SilvaTaxon, error) {
	t, ok := db.taxa[id]
	if !ok {
		return nil, errors.Errorf("taxonomy: silva taxid %d not found", id)
	}
	segs := strings.Split(t.Path, ";")
	out := make([]SilvaTaxon, 0, len(segs))
	for i := range segs {
		if pid, ok := db.byPath[strings.Join(segs[:i+1], ";")]; ok {
			out = append(out, *db.taxa[pid])
		}
	}
	return out, nil
}

// AtRank returns the ancestor of id (or id itself) at the given rank.
func (db *SilvaDB) AtRank(id int, rank string) (int, bool) {
	path, err := db.Lineage(id)
	if err != nil {
		return 0, false
	}
	for _, t := range path {
		if sameRank(t.Rank, rank) {
			return t.ID, true
		}
	}
	return 0, false
}
