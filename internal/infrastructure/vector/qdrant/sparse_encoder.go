package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

// sparseVector is a hashed term-frequency vector scored by Qdrant's sparse
// dot product. It stands in for BM25 on the lexical path.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docTFK         = 1.2
	queryTFK       = 1.2
	nameBoost      = 3.0
	loanTypeBoost  = 2.0
	maxSparseTerms = 256
)

func encodeSparseLoan(rec domain.LoanRecord) sparseVector {
	termFreq := make(map[uint32]float64, 64)
	appendTermFreq(termFreq, tokenize(rec.SearchText()), 1.0)
	appendTermFreq(termFreq, tokenize(rec.CustomerName), nameBoost-1)
	appendTermFreq(termFreq, tokenize(string(rec.LoanType)), loanTypeBoost-1)
	return termFreqToSparse(termFreq, docTFK)
}

func encodeSparseQuery(query string) sparseVector {
	termFreq := make(map[uint32]float64, 16)
	appendTermFreq(termFreq, tokenize(query), 1.0)
	return termFreqToSparse(termFreq, queryTFK)
}

func appendTermFreq(dst map[uint32]float64, tokens []string, weight float64) {
	if weight <= 0 {
		return
	}
	for _, token := range tokens {
		dst[hashToken(token)] += weight
	}
}

// termFreqToSparse saturates raw frequencies the way BM25 does, so repeated
// terms stop adding weight.
func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		f := tf[idx]
		weight := (f * (k + 1.0)) / (f + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}
	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
