package observable

import (
	"math"
	"sort"

	"github.com/harun/echosweep/pkg/engine"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
)

// GraphOptions selects the optional network metrics.
type GraphOptions struct {
	Assortativity bool
	Transitivity  bool
}

// Connectivity holds the metrics of a pruned interaction network.
type Connectivity struct {
	Nodes       int
	KeptEdges   int
	PrunedEdges int

	// Component sizes in descending order
	SCCSizes []int
	WCCSizes []int

	// Nil when not requested or undefined
	Assortativity *float64
	Transitivity  *float64
}

// Prune drops every directed edge (u, v) with |mu[u]-mu[v]| >= beta*sqrt(var[u]),
// the threshold being scaled by the source agent's own variance. The returned
// slice never aliases edges.
func Prune(edges []engine.Edge, mu, variance []float64, beta float64) ([]engine.Edge, error) {
	if err := checkAttributes(mu, variance); err != nil {
		return nil, err
	}

	n := len(mu)
	kept := make([]engine.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Source < 0 || e.Source >= n || e.Target < 0 || e.Target >= n {
			return nil, &GraphReductionError{Reason: "unknown agent", Source: e.Source, Target: e.Target}
		}
		if math.Abs(mu[e.Source]-mu[e.Target]) < beta*math.Sqrt(variance[e.Source]) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// Analyze prunes the snapshot's network at beta and computes its
// connectivity metrics. Every agent is a node, isolated or not.
func Analyze(snap engine.Snapshot, beta float64, opts GraphOptions) (Connectivity, error) {
	kept, err := Prune(snap.Edges, snap.Mean, snap.Variance, beta)
	if err != nil {
		return Connectivity{}, err
	}

	n := len(snap.Mean)
	directed := simple.NewDirectedGraph()
	undirected := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		directed.AddNode(simple.Node(i))
		undirected.AddNode(simple.Node(i))
	}

	// Self-loops never change components or triangles.
	links := make([]engine.Edge, 0, len(kept))
	for _, e := range kept {
		if e.Source == e.Target {
			continue
		}
		u, v := simple.Node(e.Source), simple.Node(e.Target)
		directed.SetEdge(directed.NewEdge(u, v))
		undirected.SetEdge(undirected.NewEdge(u, v))
		links = append(links, e)
	}

	c := Connectivity{
		Nodes:       n,
		KeptEdges:   len(kept),
		PrunedEdges: len(snap.Edges) - len(kept),
		SCCSizes:    componentSizes(topo.TarjanSCC(directed)),
		WCCSizes:    componentSizes(topo.ConnectedComponents(undirected)),
	}

	if opts.Assortativity {
		c.Assortativity = assortativity(links, snap.Mean)
	}
	if opts.Transitivity {
		t := transitivity(undirected)
		c.Transitivity = &t
	}
	return c, nil
}

func checkAttributes(mu, variance []float64) error {
	if len(mu) != len(variance) {
		return &GraphReductionError{Reason: "mean and variance lengths differ", Source: -1, Target: -1}
	}
	for i := range mu {
		if math.IsNaN(mu[i]) || math.IsInf(mu[i], 0) {
			return &GraphReductionError{Reason: "non-finite mean", Source: i, Target: i}
		}
		if !(variance[i] >= 0) || math.IsInf(variance[i], 0) {
			return &GraphReductionError{Reason: "invalid variance", Source: i, Target: i}
		}
	}
	return nil
}

func componentSizes(components [][]graph.Node) []int {
	sizes := make([]int, len(components))
	for i, c := range components {
		sizes[i] = len(c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes
}

// assortativity is the Pearson correlation of mu across edge endpoints.
func assortativity(edges []engine.Edge, mu []float64) *float64 {
	if len(edges) < 2 {
		return nil
	}
	src := make([]float64, len(edges))
	dst := make([]float64, len(edges))
	for i, e := range edges {
		src[i] = mu[e.Source]
		dst[i] = mu[e.Target]
	}
	r := stat.Correlation(src, dst, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil
	}
	return &r
}

// transitivity is the global clustering coefficient: closed triples over
// connected triples. A graph without triples has transitivity 0.
func transitivity(g *simple.UndirectedGraph) float64 {
	var closed, triples float64
	for _, n := range graph.NodesOf(g.Nodes()) {
		nbrs := graph.NodesOf(g.From(n.ID()))
		k := len(nbrs)
		triples += float64(k*(k-1)) / 2
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if g.HasEdgeBetween(nbrs[i].ID(), nbrs[j].ID()) {
					closed++
				}
			}
		}
	}
	if triples == 0 {
		return 0
	}
	return closed / triples
}
