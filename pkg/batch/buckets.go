package batch

import (
	"sort"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
)

const (
	dateBucketPrefix     = "date:"
	locationBucketPrefix = "location:"
	fallbackBucket       = "unkeyed"
)

// buckets groups record indexes so that only plausible pairs are scored.
// Dated records are keyed by calendar day, undated records by location key, and records
// with neither share one fallback bucket.
type buckets struct {
	keys       []string
	members    map[string][]int
	neighbours map[string]string
}

func bucketize(fps []*fingerprint.Fingerprint, fuzzyDate bool) *buckets {
	b := &buckets{
		members:    make(map[string][]int),
		neighbours: make(map[string]string),
	}

	for i, fp := range fps {
		key := fallbackBucket
		switch {
		case fp.HasDate():
			key = dateBucketPrefix + fp.DateKey
		case fp.LocationKey != "":
			key = locationBucketPrefix + fp.LocationKey
		}
		if _, ok := b.members[key]; !ok {
			b.keys = append(b.keys, key)
		}
		b.members[key] = append(b.members[key], i)
	}
	sort.Strings(b.keys)

	if fuzzyDate {
		for _, key := range b.keys {
			next, ok := nextDay(key)
			if !ok {
				continue
			}
			if _, exists := b.members[next]; exists {
				b.neighbours[key] = next
			}
		}
	}
	return b
}

// pairs lists every index pair to score, each exactly once with the lower index first
func (b *buckets) pairs() [][2]int {
	pairs := make([][2]int, 0)
	for _, key := range b.keys {
		m := b.members[key]
		for x := 0; x < len(m); x++ {
			for y := x + 1; y < len(m); y++ {
				pairs = append(pairs, ordered(m[x], m[y]))
			}
		}

		next, ok := b.neighbours[key]
		if !ok {
			continue
		}
		for _, i := range m {
			for _, j := range b.members[next] {
				pairs = append(pairs, ordered(i, j))
			}
		}
	}
	return pairs
}

func nextDay(key string) (string, bool) {
	dateKey, ok := strings.CutPrefix(key, dateBucketPrefix)
	if !ok {
		return "", false
	}
	day, err := time.Parse(fingerprint.DateKeyLayout, dateKey)
	if err != nil {
		return "", false
	}
	return dateBucketPrefix + day.AddDate(0, 0, 1).Format(fingerprint.DateKeyLayout), true
}

func ordered(i, j int) [2]int {
	if i > j {
		return [2]int{j, i}
	}
	return [2]int{i, j}
}

// disjointSet is a union-find forest with path compression and union by size
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

func (d *disjointSet) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

func (d *disjointSet) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
}
