// Package taxonomy reads the NCBI taxonomy dump (nodes.dmp and names.dmp) and
// the SILVA rRNA taxonomy so that taxon ids reported by classifiers or mapped
// from reference sequences can be collapsed to a chosen rank.
package taxonomy

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
)

// Root is the id of the root of the NCBI taxonomy.
const Root = 1

// lineages deeper than this are assumed to contain a cycle.
const maxDepth = 256

// ValidRanks are the ranks accepted by AtRank.
var ValidRanks = []string{"domain", "superkingdom", "kingdom", "phylum", "class", "order", "family", "genus", "species"}

// IsValidRank reports whether rank is one of ValidRanks.
func IsValidRank(rank string) bool {
	for _, r := range ValidRanks {
		if r == rank {
			return true
		}
	}
	return false
}

// sameRank treats domain and superkingdom as one rank; SILVA and newer NCBI
// dumps say domain.
func sameRank(a, b string) bool {
	if a == "superkingdom" {
		a = "domain"
	}
	if b == "superkingdom" {
		b = "domain"
	}
	return a == b
}

// Ranker names taxa and collapses them to a rank. *DB and *SilvaDB implement
// it.
type Ranker interface {
	Len() int
	Name(id int) string
	AtRank(id int, rank string) (int, bool)
}

// Node is a single entry from nodes.dmp.
type Node struct {
	ID     int
	Parent int
	Rank   string
}

// DB maps taxon ids to their parent, rank and scientific name.
type DB struct {
	nodes map[int]Node
	names map[int]string
}

// Open reads (possibly gzipped) nodes.dmp and names.dmp files. names may be
// empty, in which case Name returns the id.
func Open(nodesPath, namesPath string) (*DB, error) {
	nf, err := xopen.Ropen(nodesPath)
	if err != nil {
		return nil, err
	}
	defer nf.Close()
	var names io.Reader
	if namesPath != "" {
		mf, err := xopen.Ropen(namesPath)
		if err != nil {
			return nil, err
		}
		defer mf.Close()
		names = mf
	}
	return Read(nf, names)
}

// Read parses a nodes.dmp and an optional names.dmp.
func Read(nodes, names io.Reader) (*DB, error) {
	db := &DB{nodes: make(map[int]Node, 1<<16), names: make(map[int]string, 1<<16)}
	err := eachRow(nodes, dmpSep, 3, func(toks []string) error {
		id, err := strconv.Atoi(toks[0])
		if err != nil {
			return err
		}
		parent, err := strconv.Atoi(toks[1])
		if err != nil {
			return err
		}
		db.nodes[id] = Node{ID: id, Parent: parent, Rank: toks[2]}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "nodes.dmp")
	}
	if names == nil {
		return db, nil
	}
	err = eachRow(names, dmpSep, 4, func(toks []string) error {
		if toks[3] != "scientific name" {
			return nil
		}
		id, err := strconv.Atoi(toks[0])
		if err != nil {
			return err
		}
		db.names[id] = toks[1]
		return nil
	})
	return db, errors.Wrap(err, "names.dmp")
}

const dmpSep = "\t|\t"

// eachRow calls fn with the sep-separated fields of every non-empty row.
func eachRow(r io.Reader, sep string, minFields int, fn func([]string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16384), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(strings.TrimRight(scanner.Text(), "\r"), "\t|")
		if line == "" {
			continue
		}
		toks := strings.Split(line, sep)
		if len(toks) < minFields {
			return errors.Errorf("line %d: expected at least %d fields, got %d", lineNo, minFields, len(toks))
		}
		if err := fn(toks); err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
	}
	return scanner.Err()
}

// Len is the number of nodes.
func (db *DB) Len() int { return len(db.nodes) }

// Name returns the scientific name of id, or the id itself when unknown.
func (db *DB) Name(id int) string {
	if n, ok := db.names[id]; ok {
		return n
	}
	return strconv.Itoa(id)
}

// Lineage returns the nodes from the root down to id.
func (db *DB) Lineage(id int) ([]Node, error) {
	var path []Node
	for cur := id; ; {
		n, ok := db.nodes[cur]
		if !ok {
			return nil, errors.Errorf("taxonomy: %d not found in lineage of %d", cur, id)
		}
		path = append(path, n)
		if cur == Root || n.Parent == cur {
			break
		}
		if len(path) > maxDepth {
			return nil, errors.Errorf("taxonomy: lineage of %d is deeper than %d; cycle in nodes.dmp?", id, maxDepth)
		}
		cur = n.Parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// AtRank returns the ancestor of id (or id itself) at the given rank.
func (db *DB) AtRank(id int, rank string) (int, bool) {
	path, err := db.Lineage(id)
	if err != nil {
		return 0, false
	}
	for _, n := range path {
		if sameRank(n.Rank, rank) {
			return n.ID, true
		}
	}
	return 0, false
}
