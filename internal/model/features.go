package model

import (
	"math/rand/v2"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"
)

// RandomFeatures draws an independent standard-normal vector per token. The
// token text is ignored; only the count matters. Every call restarts the
// stream from Seed, so the same token count always yields the same matrix.
type RandomFeatures struct {
	Dim  int
	Seed uint64
}

// Features returns a len(tokens) x Dim matrix.
func (f RandomFeatures) Features(tokens []string) *mat.Dense {
	if len(tokens) == 0 {
		return &mat.Dense{}
	}
	rng := rand.New(rand.NewPCG(f.Seed, 0xda3e39cb94b95bdb))
	data := make([]float64, len(tokens)*f.Dim)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(len(tokens), f.Dim, data)
}

// HashedFeatures gives every distinct lowercased token a fixed pseudo-random
// embedding derived from its xxhash, so repeated words share a vector.
type HashedFeatures struct {
	Dim  int
	Seed uint64
}

// Features returns a len(tokens) x Dim matrix.
func (f HashedFeatures) Features(tokens []string) *mat.Dense {
	if len(tokens) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(tokens), f.Dim, nil)
	cache := make(map[string][]float64)
	for i, tok := range tokens {
		key := strings.ToLower(tok)
		vec, ok := cache[key]
		if !ok {
			vec = f.embed(key)
			cache[key] = vec
		}
		copy(out.RawRowView(i), vec)
	}
	return out
}

func (f HashedFeatures) embed(token string) []float64 {
	rng := rand.New(rand.NewPCG(xxhash.Sum64String(token), f.Seed))
	vec := make([]float64, f.Dim)
	for j := range vec {
		vec[j] = rng.NormFloat64()
	}
	return vec
}
