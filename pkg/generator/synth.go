package generator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/dd0wney/cluso-bench/pkg/model"
)

// Categories are the product categories drawn from
var Categories = []string{"Electronics", "Clothing", "Books", "Home", "Beauty", "Sports", "Food", "Toys"}

const (
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLen      = 6
	minPrice       = 10.0
	maxPrice       = 1000.0
)

func suffix(rng *rand.Rand) string {
	b := make([]byte, suffixLen)
	for i := range b {
		b[i] = suffixAlphabet[rng.IntN(len(suffixAlphabet))]
	}
	return string(b)
}

func newUser(rng *rand.Rand, unix int64, index int, hash string) model.NewUser {
	s := suffix(rng)
	return model.NewUser{
		Name:         "User " + s,
		Email:        fmt.Sprintf("user_%d_%d_%s@example.com", unix, index, s),
		PasswordHash: hash,
	}
}

func newProduct(rng *rand.Rand, index int) model.NewProduct {
	price := minPrice + rng.Float64()*(maxPrice-minPrice)
	return model.NewProduct{
		Name:     fmt.Sprintf("Product %d_%s", index+1, suffix(rng)),
		Category: Categories[rng.IntN(len(Categories))],
		Price:    math.Round(price*100) / 100,
	}
}

// pickDistinct returns up to k distinct indices in [0, n) other than
// exclude (pass -1 to exclude nothing), in random order
func pickDistinct(rng *rand.Rand, n, k, exclude int) []int {
	avail := n
	if exclude >= 0 && exclude < n {
		avail--
	}
	if k > avail {
		k = avail
	}
	if k <= 0 {
		return nil
	}

	// dense: partial Fisher-Yates over the candidates
	if k*2 >= avail {
		all := make([]int, 0, avail)
		for i := 0; i < n; i++ {
			if i != exclude {
				all = append(all, i)
			}
		}
		for i := 0; i < k; i++ {
			j := i + rng.IntN(len(all)-i)
			all[i], all[j] = all[j], all[i]
		}
		return all[:k]
	}

	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for len(out) < k {
		i := rng.IntN(n)
		if i == exclude {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// sampleIDs returns up to limit ids drawn without replacement
func sampleIDs(rng *rand.Rand, ids []string, limit int) []string {
	if len(ids) <= limit {
		return ids
	}
	idx := pickDistinct(rng, len(ids), limit, -1)
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = ids[j]
	}
	return out
}
