package strategy

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"
)

// branch is one node in the thought tree. Its id encodes depth through
// the number of underscores: "2" is a root, "2_1" its first child.
type branch struct {
	id       string
	parent   *branch
	depth    int
	score    float64
	explored bool
}

// treeOfThoughts explores a bounded tree of candidate thoughts. Depth and
// branching factor are sized from the problem; exploration is ordered by
// evaluation score and may backtrack to shallower siblings when a subtree
// saturates. The run ends with a synthesis of the best root-to-leaf path.
type treeOfThoughts struct {
	model       Model
	problem     string
	maxDepth    int
	branching   int
	branches    []*branch
	perDepth    map[int]int
	bestLeaf    *branch
	exploredN   int
	tokens      int
	synthesized bool
}

const (
	totMinDepth     = 3
	totMaxDepth     = 5
	totMinBranching = 2
	totMaxBranching = 3
)

func newTreeOfThoughts(model Model) *treeOfThoughts {
	return &treeOfThoughts{
		model:     model,
		maxDepth:  totMinDepth,
		branching: totMinBranching,
		perDepth:  make(map[int]int),
	}
}

func (t *treeOfThoughts) Name() string { return "tree_of_thoughts" }

// Initialize sizes the tree from the problem's token count and seeds the
// root branches. Repeated calls keep the existing tree.
func (t *treeOfThoughts) Initialize(problem string) {
	if t.problem != "" {
		return
	}
	t.problem = problem

	problemTokens := estimateStepTokens(problem)
	switch {
	case problemTokens < 100:
		t.maxDepth, t.branching = 3, 2
	case problemTokens < 300:
		t.maxDepth, t.branching = 4, 2
	case problemTokens < 600:
		t.maxDepth, t.branching = 4, 3
	default:
		t.maxDepth, t.branching = totMaxDepth, totMaxBranching
	}

	for i := 1; i <= t.branching; i++ {
		id := fmt.Sprintf("%d", i)
		t.branches = append(t.branches, &branch{
			id:    id,
			depth: 1,
			score: t.evaluate(id, 0.5),
		})
	}
}

func (t *treeOfThoughts) NextStep() *Step {
	if t.synthesized {
		return nil
	}

	candidate := t.nextCandidate()
	if candidate == nil {
		return t.synthesize()
	}

	candidate.explored = true
	t.exploredN++
	t.perDepth[candidate.depth]++

	if candidate.depth == t.maxDepth {
		if t.bestLeaf == nil || candidate.score > t.bestLeaf.score {
			t.bestLeaf = candidate
		}
	} else {
		for i := 1; i <= t.branching; i++ {
			id := fmt.Sprintf("%s_%d", candidate.id, i)
			t.branches = append(t.branches, &branch{
				id:     id,
				parent: candidate,
				depth:  candidate.depth + 1,
				score:  t.evaluate(id, candidate.score),
			})
		}
	}

	reasoning := fmt.Sprintf("Exploring branch %s (depth %d/%d, score %.2f) for: %s",
		candidate.id, candidate.depth, t.maxDepth, candidate.score, truncate(t.problem, 120))
	tokens := estimateStepTokens(reasoning)
	t.tokens += tokens

	return &Step{
		ID:          newStepID(),
		Description: fmt.Sprintf("branch %s exploration", candidate.id),
		Reasoning:   reasoning,
		Tokens:      tokens,
		Status:      StatusActive,
		Timestamp:   time.Now().UTC(),
		Confidence:  clamp(candidate.score, 0, 0.95),
	}
}

// nextCandidate picks the highest-scored unexplored branch whose depth
// still has exploration budget. Because selection is global, a saturated
// subtree hands control back to shallower siblings, which is the
// backtracking behavior.
func (t *treeOfThoughts) nextCandidate() *branch {
	eligible := make([]*branch, 0, len(t.branches))
	for _, b := range t.branches {
		if b.explored || t.perDepth[b.depth] >= t.branching {
			continue
		}
		eligible = append(eligible, b)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].id < eligible[j].id
	})
	return eligible[0]
}

func (t *treeOfThoughts) synthesize() *Step {
	t.synthesized = true

	path := t.bestPath()
	reasoning := fmt.Sprintf("Synthesis of best path %s across %d explored branches.",
		strings.Join(path, " -> "), t.exploredN)
	tokens := estimateStepTokens(reasoning)
	t.tokens += tokens

	confidence := baselineConfidence(1, ComplexityLow)
	if t.bestLeaf != nil {
		confidence = clamp(0.5+t.bestLeaf.score/2, 0, 0.95)
	}

	return &Step{
		ID:          newStepID(),
		Description: "best-path synthesis",
		Reasoning:   reasoning,
		Tokens:      tokens,
		Status:      StatusCompleted,
		Timestamp:   time.Now().UTC(),
		Confidence:  confidence,
	}
}

func (t *treeOfThoughts) bestPath() []string {
	if t.bestLeaf == nil {
		return []string{"root"}
	}
	var ids []string
	for b := t.bestLeaf; b != nil; b = b.parent {
		ids = append(ids, b.id)
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

func (t *treeOfThoughts) ShouldContinue() bool {
	return !t.synthesized
}

func (t *treeOfThoughts) Progress() float64 {
	planned := float64(t.maxDepth*t.branching + 1)
	done := float64(t.exploredN)
	if t.synthesized {
		done++
	}
	if done > planned {
		done = planned
	}
	return done / planned
}

func (t *treeOfThoughts) Metrics() Metrics {
	progress := t.Progress()
	return Metrics{
		Confidence:      baselineConfidence(progress, remainingComplexity(progress)),
		Reasoning:       fmt.Sprintf("tree depth %d, branching %d, %d branches explored", t.maxDepth, t.branching, t.exploredN),
		Alternatives:    t.alternatives(),
		TokenEfficiency: tokenEfficiency(progress, t.tokens),
		ComplexityScore: complexityScore(t.model.Complexity),
	}
}

// alternatives exposes explored non-best leaves as alternative paths,
// sorted by confidence.
func (t *treeOfThoughts) alternatives() []Alternative {
	var out []Alternative
	for _, b := range t.branches {
		if !b.explored || b.depth != t.maxDepth || b == t.bestLeaf {
			continue
		}
		var ids []string
		for n := b; n != nil; n = n.parent {
			ids = append(ids, n.id)
		}
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		out = append(out, Alternative{
			Description: fmt.Sprintf("path through branch %s", b.id),
			Steps:       ids,
			Confidence:  clamp(b.score, 0, 0.95),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// evaluate scores a branch deterministically from the problem and branch
// id, blended with the parent's score so promising subtrees stay hot.
func (t *treeOfThoughts) evaluate(id string, parentScore float64) float64 {
	h := fnv.New32a()
	h.Write([]byte(t.problem))
	h.Write([]byte(id))
	jitter := float64(h.Sum32()%1000) / 1000.0
	return clamp(0.6*parentScore+0.4*jitter, 0.05, 0.95)
}
