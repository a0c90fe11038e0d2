// Package seed derives reproducible, mutually independent random seeds
// for per-block Monte Carlo sampling.
//
// The scheme is fixed: an identity string (variable, dataset, ensemble
// selector) is hashed with DJB2 to a 64-bit integer, which seeds a
// Philox generator that yields the root entropy vector. At computation
// time a one-word block salt is drawn the same way from a hash of the
// block coordinate, and the block seed is the salt followed by the root
// entropy, in that order. The order never changes; adding or removing
// blocks in one array never perturbs the seeds used anywhere else.
package seed

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/rng"
)

// RootWords is the length of the root entropy vector; SaltWords the
// length of the block-local salt. Block seeds have RootWords+SaltWords
// words.
const (
	RootWords = 8
	SaltWords = 1
)

// Identity names one random stream: a variable within a dataset, drawn
// for one ensemble member.
type Identity struct {
	// Variable is the physical variable name, e.g. "chlor_a".
	Variable string

	// Dataset is a stable dataset identifier; see DatasetID.
	Dataset string

	// Selector is the ensemble member index.
	Selector int

	// Antithetic pairs consecutive selectors (even k with odd k+1) on
	// the same root entropy; the odd member's draws are sign-flipped
	// after sampling.
	Antithetic bool
}

// DatasetID returns the dataset identifier for an identity: the dataset's
// tracking id when it carries a well-formed one (normalized to canonical
// UUID form), otherwise the base name of the source path.
func DatasetID(trackingID, sourcePath string) string {
	if trackingID != "" {
		if u, err := uuid.Parse(trackingID); err == nil {
			return u.String()
		}
		return trackingID
	}
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// effectiveSelector collapses antithetic pairs onto one stream: even k
// and odd k+1 share root entropy.
func (id Identity) effectiveSelector() int {
	if id.Antithetic {
		return id.Selector / 2
	}
	return id.Selector
}

// Negate reports whether draws for this identity are sign-flipped.
func (id Identity) Negate() bool {
	return id.Antithetic && id.Selector%2 == 1
}

// String renders the identity string that is hashed for root entropy.
// The format is part of the reproducibility contract.
func (id Identity) String() string {
	return fmt.Sprintf("%s|%s|%d", id.Variable, id.Dataset, id.effectiveSelector())
}

// RootEntropy derives the root entropy vector for the identity.
// Identical identities always yield identical entropy; distinct ones
// yield independent entropy.
func (id Identity) RootEntropy() []uint64 {
	g := rng.New(djb2(id.String()))
	root := make([]uint64, RootWords)
	for i := range root {
		root[i] = g.Uint64()
	}
	return root
}

// BlockSalt derives the block-local salt for a block-grid coordinate.
func BlockSalt(coord []int) uint64 {
	return rng.New(djb2(grid.CoordKey(coord))).Uint64()
}

// BlockSeed is the final per-block seed: salt first, then root entropy.
func BlockSeed(root []uint64, coord []int) []uint64 {
	s := make([]uint64, 0, SaltWords+len(root))
	s = append(s, BlockSalt(coord))
	return append(s, root...)
}

// djb2 is the classic polynomial string hash (h = h*33 + c, h0 = 5381),
// widened to 64 bits. It only has to spread identities across Philox
// keys; the generator provides the cross-stream independence.
func djb2(s string) uint64 {
	h := uint64(5381)
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}
