package lexical

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"unicode"
)

// Scorer is a relevance scorer that needs no external model service.
// It measures unigram and bigram overlap between the query and each
// candidate text, which is enough to reorder a shortlist that vector
// search already found relevant.
type Scorer struct {
	workers int
}

func NewScorer(workers int) *Scorer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scorer{workers: workers}
}

func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	queryTokens := tokenSet(query)
	queryBigrams := bigramSet(query)

	scores := make([]float64, len(texts))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(texts) {
		workers = len(texts)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i] = overlap(queryTokens, tokenSet(texts[i])) +
					0.25*overlap(queryBigrams, bigramSet(texts[i]))
			}
		}()
	}

	var err error
feed:
	for i := range texts {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return scores, nil
}

func overlap(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func tokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func bigramSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	if len(tokens) < 2 {
		return nil
	}
	out := make(map[string]struct{}, len(tokens)-1)
	for i := 0; i < len(tokens)-1; i++ {
		out[tokens[i]+" "+tokens[i+1]] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
